package service

import (
	"context"
	"time"

	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
)

// TempSweeper removes temp files abandoned by interrupted uploads
type TempSweeper interface {
	SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepService cleans every store's temp files
type SweepService struct {
	stores  map[string]TempSweeper
	maxAge  time.Duration
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewSweepService creates a sweeper removing temp files older than maxAge
func NewSweepService(stores map[string]TempSweeper, maxAge time.Duration, m *metrics.Metrics, log *logger.Logger) *SweepService {
	return &SweepService{stores: stores, maxAge: maxAge, metrics: m, log: log}
}

// Run sweeps every store and returns how many files were removed. A failing
// store does not stop the others.
func (s *SweepService) Run(ctx context.Context) (int, error) {
	var (
		total    int
		firstErr error
	)
	for name, store := range s.stores {
		n, err := store.SweepTemp(ctx, s.maxAge)
		total += n
		s.metrics.FilesSwept(n)
		if err != nil {
			s.log.Warn("temp sweep failed", "store", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if n > 0 {
			s.log.Info("swept temp files", "store", name, "removed", n)
		}
	}
	return total, firstErr
}
