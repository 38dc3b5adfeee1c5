package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/config"
	"podoclinic/backend/internal/service/appointments"
	"podoclinic/backend/internal/store"
	"podoclinic/backend/internal/store/postgres"
	"podoclinic/backend/internal/store/remote"
)

const serviceName = "podoclinic-server"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile, envFile string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Appointment slot availability and booking service for the clinic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment; missing files are ignored")

	load := func() (config.Config, *slog.Logger, error) {
		log := newLogger("info")
		if err := loadEnvFile(envFile); err != nil {
			log.Error("env file load failed", slog.String("path", envFile), slog.Any("err", err))
			return config.Config{}, nil, err
		}
		cfg, err := config.Load(configFile)
		if err != nil {
			log.Error("config load failed", slog.Any("err", err))
			return config.Config{}, nil, err
		}
		log = newLogger(cfg.LogLevel)
		slog.SetDefault(log)
		return cfg, log, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newAvailabilityCmd(load),
		newMigrateCmd(load),
		newPatientCmd(load),
	)
	return root
}

type loader func() (config.Config, *slog.Logger, error)

// loadEnvFile exports the variables in path that are not already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

// backend is the wired service plus whatever must be released on exit.
type backend struct {
	svc   *appointments.Service
	close func()
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (backend, error) {
	engine, err := availability.New(cfg.Hours,
		availability.WithLogger(log),
		availability.WithAlternatives(cfg.Alternatives),
	)
	if err != nil {
		return backend{}, fmt.Errorf("availability engine: %w", err)
	}

	var (
		st        store.AppointmentStore
		directory store.ClinicDirectory
		closeFn   = func() {}
	)
	switch cfg.StoreBackend {
	case config.BackendRemote:
		log.Info("using remote appointment store", slog.String("base_url", cfg.RemoteBaseURL))
		client, err := remote.New(remote.Config{BaseURL: cfg.RemoteBaseURL, Timeout: cfg.RemoteTimeout}, nil, log)
		if err != nil {
			return backend{}, err
		}
		st, directory = client, client
	default:
		db, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return backend{}, err
		}
		st = postgres.NewAppointmentRepo(db, engine, log)
		directory = postgres.NewPatientDirectory(db)
		closeFn = func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}
	}

	return backend{svc: appointments.NewService(st, directory, engine, log), close: closeFn}, nil
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
	}, log)
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, err
	}
	return db, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	host, port, name := u.Hostname(), u.Port(), strings.TrimPrefix(u.Path, "/")
	if host == "" {
		host = "unknown"
	}
	if port == "" {
		port = "default"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
