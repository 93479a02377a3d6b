package main

import (
	"fmt"
	"os"

	"contractor-backend/internal/config"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/timeutil"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "contractor-backend",
	Short: "Estimates, invoices and change orders for electrical contractors",
	Long: `contractor-backend serves the financial-document API: estimates, invoices
and change orders with numbering, pricing, status tracking, rendered PDFs,
email delivery and online payment reconciliation.

Running without a subcommand starts the HTTP server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to the YAML config file")
}

// loadConfig reads configuration and sets up logging and the business timezone
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	if err := logger.Setup(logCfg); err != nil {
		return nil, fmt.Errorf("logger setup: %w", err)
	}

	if err := timeutil.SetLocation(cfg.Server.Timezone); err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Server.Timezone, err)
	}
	return cfg, nil
}
