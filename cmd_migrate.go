package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/xiaot623/gogo/convstore/internal/app"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		if err := app.Migrate(cmd.Context(), cfg); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("schema up to date", "driver", cfg.DatabaseDriver)
		return nil
	},
}
