package main

import (
	"context"
	"time"

	"contractor-backend/internal/artifacts"
	"contractor-backend/internal/db"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/repositories"
	"contractor-backend/internal/services"
	"contractor-backend/internal/storage"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep-overdue",
	Short: "Persist the overdue status of unpaid invoices past their due date",
	Long: `Reads already report past-due invoices as overdue. This command stores
that status so filters and reports on the stored status agree. Run it daily
from cron or a Kubernetes CronJob.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		objects, err := storage.New(ctx, cfg)
		if err != nil {
			return err
		}
		docs := repositories.NewDocumentRepository(pool)
		cache := artifacts.NewService(docs, objects, nil, nil, nil, cfg.Render.Timeout)

		moved, err := services.NewOverdueService(docs, cache).Sweep(ctx)
		if err != nil {
			return err
		}
		log := logger.WithComponent("sweep")
		log.Info().Int("moved", moved).Msg("Overdue sweep complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
