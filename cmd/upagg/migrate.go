package main

import (
	"errors"

	"github.com/spf13/cobra"

	pgstore "upagg/internal/aggregation/store/postgres"
	"upagg/internal/platform/config"
	"upagg/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, config.FromEnv().Database)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("DATABASE_URL is required")
			}
			defer db.Close()
			return pgstore.New(db).EnsureSchema(ctx)
		},
	}
}
