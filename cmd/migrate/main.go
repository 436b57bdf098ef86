package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/veritas/internal/config"
	"github.com/saturnino-fabrica-de-software/veritas/internal/database"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, steps, version, force")
	steps := flag.Int("steps", 0, "Step count (steps action) or target version (force action)")
	dbName := flag.String("db", "veritas", "Database name used to label the migration instance")
	flag.Parse()

	_ = godotenv.Load()

	// só o DSN; config.Load exige os segredos da API
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return domain.ErrFatalConfiguration.WithError(errors.New("DATABASE_URL is required"))
	}

	logger := config.NewLogger(os.Getenv("ENV"))
	ctx := context.Background()

	if *action == "up" {
		st, err := database.MigrateUp(ctx, dsn, *dbName, logger)
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations applied", slog.String("status", st.String()))
		return nil
	}

	db, err := database.OpenSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, *dbName)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()
	migrator.WithLogger(logger)

	switch *action {
	case "down":
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("last migration rolled back")

	case "steps":
		if *steps == 0 {
			return errors.New("steps flag is required for steps action")
		}
		if err := migrator.Steps(*steps); err != nil {
			return err
		}
		logger.Info("migration steps applied", slog.Int("steps", *steps))

	case "version":
		// handled below

	case "force":
		if *steps == 0 {
			return errors.New("steps flag is required for force action")
		}
		if err := migrator.Force(*steps); err != nil {
			return err
		}
		logger.Warn("migration version forced", slog.Int("version", *steps))

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, steps, version, force)", *action)
	}

	st, err := migrator.Status()
	if err != nil {
		return err
	}
	logger.Info("schema status", slog.String("status", st.String()))
	return nil
}
