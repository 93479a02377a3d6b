package main

import (
	"fmt"
	"time"

	"contractor-backend/internal/auth"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign an API token for a user (development and service accounts)",
	Example: `  contractor-backend issue-token --user 1 --email owner@example.com --ttl 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetInt64("user")
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if userID <= 0 {
			return fmt.Errorf("--user must be a positive id")
		}

		token, err := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateToken(userID, email, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Int64("user", 0, "user id to issue the token for [REQUIRED]")
	tokenCmd.Flags().String("email", "", "email claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
