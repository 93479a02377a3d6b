package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"contractor-backend/internal/db"
	"contractor-backend/internal/logger"

	"github.com/spf13/cobra"
)

// resetTables are cleared child-first; business profiles are kept
var resetTables = []string{
	"payment_events",
	"line_items",
	"documents",
	"project_folders",
	"projects",
	"document_counters",
}

var resetCmd = &cobra.Command{
	Use:   "reset-data",
	Short: "Delete all documents, projects, payments and numbering counters",
	Long: `Clears document data for test environments. Numbering restarts at 0001
for every type and year afterwards. Business profiles are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprint(cmd.OutOrStdout(), "This deletes ALL document data. Type 'yes' to confirm: ")
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
				return nil
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback(ctx)

		log := logger.WithComponent("reset")
		for _, table := range resetTables {
			if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
			log.Info().Str("table", table).Msg("Cleared")
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		log.Info().Msg("Document data reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
}
