package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations holds the embedded SQL migrations, discovered from
// <version>_<name>.tx.up.sql / .tx.down.sql pairs.
var Migrations = migrate.NewMigrations()

func init() {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	if err := Migrations.Discover(sub); err != nil {
		panic(err)
	}
}

func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	m := migrate.NewMigrator(db, Migrations, migrate.WithMarkAppliedOnSuccess(true))
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration as one group and returns the
// names it ran.
func Migrate(ctx context.Context, db *bun.DB, log *slog.Logger) ([]string, error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			log.Warn("migration unlock failed", slog.Any("err", err))
		}
	}()

	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		return nil, nil
	}
	ran := migrationNames(group)
	log.Info("migrations applied", slog.Int64("group", group.ID), slog.Any("migrations", ran))
	return ran, nil
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB, log *slog.Logger) ([]string, error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			log.Warn("migration unlock failed", slog.Any("err", err))
		}
	}()

	group, err := m.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	if group.IsZero() {
		return nil, nil
	}
	reverted := migrationNames(group)
	log.Info("migrations rolled back", slog.Int64("group", group.ID), slog.Any("migrations", reverted))
	return reverted, nil
}

func migrationNames(group *migrate.MigrationGroup) []string {
	out := make([]string, 0, len(group.Migrations))
	for _, mig := range group.Migrations {
		out = append(out, mig.Name+"_"+mig.Comment)
	}
	return out
}
