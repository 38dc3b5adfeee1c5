package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"podoclinic/backend/internal/config"
	"podoclinic/backend/internal/store/postgres"
)

type migrationStep func(ctx context.Context, db *bun.DB, log *slog.Logger) ([]string, error)

func newMigrateCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}
	cmd.AddCommand(
		migrationCmd(load, "up", "Apply pending migrations", "applied", "schema up to date", postgres.Migrate),
		migrationCmd(load, "down", "Roll back the last migration group", "rolled back", "nothing to roll back", postgres.Rollback),
	)
	return cmd
}

func migrationCmd(load loader, use, short, verb, none string, step migrationStep) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != config.BackendPostgres {
				return errors.New("migrations only apply to the postgres store backend")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := openDatabase(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			names, err := step(ctx, db, log)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), none)
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			return nil
		},
	}
}
