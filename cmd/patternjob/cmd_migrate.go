package main

import (
	"context"
	"fmt"

	"dinecast-api/internal/database"
	"dinecast-api/pkg/repository/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := database.NewRunner().Run(ctx, db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
