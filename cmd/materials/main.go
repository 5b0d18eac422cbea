package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "materials",
		Short: "Media ingestion service: content-addressed storage, thumbnails and HLS renditions",
	}

	rootCmd.AddCommand(serveEntrypoint())
	rootCmd.AddCommand(migrateEntrypoint())
	rootCmd.AddCommand(sweepEntrypoint())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
