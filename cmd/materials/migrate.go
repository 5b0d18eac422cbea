package main

import (
	"github.com/lyzr/materials/common/db"
	"github.com/spf13/cobra"
)

func migrateEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version|force N]",
		Short:     "Applies or rolls back database migrations",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return db.Migrate(cfg, log, args[0], args[1:])
		},
	}
}
