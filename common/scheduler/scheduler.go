package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/materials/common/logger"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named periodic task
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs housekeeping jobs on cron schedules
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
	ctx  context.Context

	mu      sync.Mutex
	running map[string]bool
}

// New creates a stopped scheduler. Jobs get a ctx derived from ctx.
func New(ctx context.Context, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		log:     log,
		ctx:     ctx,
		running: map[string]bool{},
	}
}

// ValidateSpec parses a cron expression or descriptor such as "@every 1h"
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Add registers job. A run that is still going when the next tick fires is
// skipped.
func (s *Scheduler) Add(job Job) error {
	if err := ValidateSpec(job.Spec); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.runOnce(job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.log.Info("scheduled job", "job", job.Name, "spec", job.Spec)
	return nil
}

func (s *Scheduler) runOnce(job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.log.Warn("skipping job, previous run still active", "job", job.Name)
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	s.log.Debug("scheduled job finished", "job", job.Name, "duration_ms", time.Since(start).Milliseconds())
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
