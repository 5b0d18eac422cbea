package main

import (
	"fmt"
	"time"

	"github.com/lyzr/materials/cmd/materials/container"
	"github.com/lyzr/materials/common/bootstrap"
	"github.com/spf13/cobra"
)

func sweepEntrypoint() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Removes temp files left behind by interrupted uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if maxAge > 0 {
				cfg.Storage.TmpMaxAge = maxAge
			}

			components, err := bootstrap.Setup(ctx, serviceName,
				bootstrap.WithCustomConfig(cfg),
				bootstrap.WithCustomLogger(log),
				bootstrap.WithoutDB(),
				bootstrap.WithoutRedis(),
				bootstrap.WithoutTelemetry(),
			)
			if err != nil {
				return err
			}
			defer components.Shutdown(ctx)

			c, err := container.NewContainer(components)
			if err != nil {
				return err
			}

			start := time.Now()
			n, err := c.SweepService.Run(ctx)
			log.Info("sweep finished", "removed", n, "older_than", cfg.Storage.TmpMaxAge, "duration", time.Since(start))
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "older-than", 0, "override STORAGE_TMP_MAX_AGE")
	return cmd
}
