package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lyzr/materials/cmd/materials/container"
	"github.com/lyzr/materials/cmd/materials/routes"
	"github.com/lyzr/materials/common/bootstrap"
	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
	commonmw "github.com/lyzr/materials/common/middleware"
	"github.com/lyzr/materials/common/scheduler"
	"github.com/lyzr/materials/common/server"
	"github.com/spf13/cobra"
)

const serviceName = "materials"

func serveEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// loadConfig loads configuration and the logger shared by every command
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat), nil
}

func runServe(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []bootstrap.Option{
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithCustomLogger(log),
	}
	if cfg.Database.AutoMigrate {
		opts = append(opts, bootstrap.WithMigrations())
	}
	if !cfg.Redis.Required {
		opts = append(opts, bootstrap.WithOptionalRedis())
	}

	// Bootstrap common components (DB, Redis, metrics, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName, opts...)
	if err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", serviceName, err)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}
	serviceContainer.FFmpeg.LogVersion(ctx)

	jobs, err := startScheduler(ctx, serviceContainer)
	if err != nil {
		return err
	}
	defer jobs.Stop()

	e := setupEcho()
	setupMiddleware(e, components)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	srv := server.New(serviceName, cfg.Service.Port, e, log)
	srv.OnShutdown(serviceContainer.IngestService.Drain)
	return srv.Start(ctx)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(commonmw.RequestContext())
	e.Use(commonmw.RequestMetrics(components.Metrics))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", components.Config.Ingest.MaxUploadBytes)))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		deps, err := components.Health(ctx)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"service":      serviceName,
				"dependencies": deps,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":       "ok",
			"service":      serviceName,
			"dependencies": deps,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterMaterialRoutes(e, serviceContainer)
	routes.RegisterStorageRoutes(e, serviceContainer)
}

// startScheduler schedules the temp file sweep
func startScheduler(ctx context.Context, c *container.Container) (*scheduler.Scheduler, error) {
	cfg := c.Components.Config.Storage
	s := scheduler.New(ctx, c.Components.Logger)

	if cfg.SweepSchedule != "" {
		err := s.Add(scheduler.Job{
			Name:    "temp-sweep",
			Spec:    cfg.SweepSchedule,
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := c.SweepService.Run(ctx)
				return err
			},
		})
		if err != nil {
			return nil, err
		}
	}

	s.Start()
	return s, nil
}
