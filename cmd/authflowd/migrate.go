package main

import (
	"fmt"

	"github.com/eventlyze/authflow/store/postgres"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command with status subcommand.
func NewMigrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			cmd.Println("Migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()

			statuses, err := postgres.MigrationStatus(ctx, db)
			if err != nil {
				return oops.Code("MIGRATION_STATUS_FAILED").Wrap(err)
			}
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %05d %s\n", s.State, s.Source.Version, s.Source.Path)
			}
			return nil
		},
	})

	return cmd
}
