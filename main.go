package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parktronic/internal/config"
	"parktronic/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "parktronic",
	Short: "Parking occupancy service",
	Long: "parktronic stores per-camera parking occupancy snapshots, serves them " +
		"over HTTP and collects a prediction dataset from them.",
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, defaulted := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	config.LogDefaults(log, defaulted)
	return cfg, log, nil
}
