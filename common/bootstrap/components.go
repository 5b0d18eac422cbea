package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/db"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
	rediscommon "github.com/lyzr/materials/common/redis"
	"github.com/lyzr/materials/common/telemetry"
)

// Health states reported per dependency
const (
	StatusOK       = "ok"
	StatusDisabled = "disabled"
)

// Components holds the process-wide dependencies shared by every command.
// DB, Redis and Telemetry are nil when disabled.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *rediscommon.Client
	Metrics   *metrics.Metrics
	Telemetry *telemetry.Telemetry

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// OnShutdown registers fn to run during Shutdown. Closers run in reverse
// registration order.
func (c *Components) OnShutdown(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Shutdown runs every registered closer once, newest first
func (c *Components) Shutdown(ctx context.Context) error {
	if len(c.closers) == 0 {
		return nil
	}
	c.Logger.Info("shutting down components", "count", len(c.closers))

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cl.name, err))
			c.Logger.Error("failed to close component", "component", cl.name, "error", err)
			continue
		}
		c.Logger.Debug("component closed", "component", cl.name)
	}
	c.closers = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health probes each external dependency. The map holds one status per
// dependency; the error joins every failure.
func (c *Components) Health(ctx context.Context) (map[string]string, error) {
	status := map[string]string{"database": StatusDisabled, "redis": StatusDisabled}
	var errs []error

	if c.DB != nil {
		status["database"] = StatusOK
		if err := c.DB.Health(ctx); err != nil {
			status["database"] = err.Error()
			errs = append(errs, fmt.Errorf("database unhealthy: %w", err))
		}
	}

	if c.Redis != nil {
		status["redis"] = StatusOK
		if err := c.Redis.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			errs = append(errs, fmt.Errorf("redis unhealthy: %w", err))
		}
	}

	return status, errors.Join(errs...)
}
