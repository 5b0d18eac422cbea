package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/db"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
	rediscommon "github.com/lyzr/materials/common/redis"
	"github.com/lyzr/materials/common/telemetry"
)

// Setup initializes config, logging, metrics and the enabled external
// dependencies. Every command starts here.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Metrics registry (always on, served by telemetry)
	components.Metrics = metrics.New()

	// 4. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.OnShutdown("database", func() error {
			components.DB.Close()
			return nil
		})

		if err := components.Metrics.Registry().Register(components.DB.Collector()); err != nil {
			components.Logger.Warn("database pool metrics unavailable", "error", err)
		}

		if options.migrate {
			if err := db.Migrate(components.Config, components.Logger, "up", nil); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	// 5. Initialize Redis (if not skipped)
	if !options.skipRedis {
		components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())
		client := rediscommon.NewClient(rediscommon.NewFromConfig(components.Config), components.Logger)
		switch err := client.Ping(ctx); {
		case err == nil:
			components.Redis = client
			components.OnShutdown("redis", client.Close)
		case options.optionalRedis:
			components.Logger.Warn("redis unreachable, continuing without it", "error", err)
			_ = client.Close()
		default:
			_ = client.Close()
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	// 6. Initialize telemetry (if not skipped)
	if !options.skipTelemetry {
		tcfg := components.Config.Telemetry
		components.Telemetry = telemetry.New(
			telemetry.Addr(tcfg.EnablePprof, tcfg.PprofPort),
			telemetry.Addr(tcfg.EnableMetrics, tcfg.MetricsPort),
			components.Metrics,
			components.Logger,
		)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
		components.OnShutdown("telemetry", func() error {
			return components.Telemetry.Shutdown(context.Background())
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
