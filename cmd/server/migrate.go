package main

import (
	"context"
	"time"

	"contractor-backend/internal/database"
	"contractor-backend/internal/db"
	"contractor-backend/internal/logger"
	"contractor-backend/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.NewMigrator(pool, migrations.FS).RunMigrations(ctx); err != nil {
			return err
		}
		log := logger.WithComponent("migrate")
		log.Info().Msg("Database is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
