package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "authflowd",
		Short:         "Authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file (default $CONFIG_PATH)")

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigrateCmd(flags))
	cmd.AddCommand(NewUserCmd(flags))

	return cmd
}

func openPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	url, err := cfg.databaseURL()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	return pool, nil
}
