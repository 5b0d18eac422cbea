package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lyzr/materials/common/logger"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many blocking jobs (ffmpeg runs, image decoding) execute
// at once. A size of zero means unbounded.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	active  atomic.Int64
	waiting atomic.Int64
	log     *logger.Logger
}

// NewPool creates a pool admitting size concurrent jobs
func NewPool(size int, log *logger.Logger) *Pool {
	p := &Pool{size: size, log: log}
	if size > 0 {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	return p
}

// Do runs fn once a slot is free. Waiting stops when ctx is done; fn itself
// receives the same ctx.
func (p *Pool) Do(ctx context.Context, job string, fn func(context.Context) error) error {
	if p.sem != nil {
		p.waiting.Add(1)
		err := p.sem.Acquire(ctx, 1)
		p.waiting.Add(-1)
		if err != nil {
			return fmt.Errorf("waiting for worker slot (%s): %w", job, err)
		}
		defer p.sem.Release(1)
	}

	n := p.active.Add(1)
	defer p.active.Add(-1)
	p.log.Debug("worker job started", "job", job, "active", n, "size", p.size)

	return fn(ctx)
}

// Active returns the number of running jobs
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Waiting returns the number of jobs queued for a slot
func (p *Pool) Waiting() int {
	return int(p.waiting.Load())
}
