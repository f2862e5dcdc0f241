package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/xiaot623/gogo/convstore/internal/app"
	"github.com/xiaot623/gogo/convstore/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "convstore",
	Short:         "Session and message persistence for conversational agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) *slog.Logger {
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger
}
