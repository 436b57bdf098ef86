package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema (requests, decisions, reviews,
// credentials) through golang-migrate.
type Migrator struct {
	m      *migrate.Migrate
	dbName string
}

// Status is the schema version recorded in schema_migrations.
type Status struct {
	Version uint
	Dirty   bool
	// Empty is true before the first migration ran.
	Empty bool
}

func (s Status) String() string {
	switch {
	case s.Empty:
		return "no migrations applied"
	case s.Dirty:
		return fmt.Sprintf("version %d (dirty, last migration incomplete)", s.Version)
	default:
		return fmt.Sprintf("version %d", s.Version)
	}
}

// NewMigrator wraps an open database/sql handle. dbName is only used to label
// the postgres driver and the migration instance.
func NewMigrator(db *sql.DB, dbName string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		DatabaseName:    dbName,
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{m: m, dbName: dbName}, nil
}

// WithLogger forwards golang-migrate progress messages to logger.
func (m *Migrator) WithLogger(logger *slog.Logger) *Migrator {
	m.m.Log = migrateLogger{logger: logger.With("component", "migrate", "database", m.dbName)}
	return m
}

// Up applies every pending migration. Nothing to apply is not an error.
func (m *Migrator) Up() error {
	if err := ignoreNoChange(m.m.Up()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down reverts the most recent migration. Meant for development databases.
func (m *Migrator) Down() error {
	return m.Steps(-1)
}

// Steps moves n migrations forward (n > 0) or backward (n < 0).
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	if err := ignoreNoChange(m.m.Steps(n)); err != nil {
		return fmt.Errorf("step %d migrations: %w", n, err)
	}
	return nil
}

// Version returns the current schema version and its dirty flag.
func (m *Migrator) Version() (uint, bool, error) {
	st, err := m.Status()
	if err != nil {
		return 0, false, err
	}
	return st.Version, st.Dirty, nil
}

// Status reports the schema version, including the empty case.
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Empty: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	return Status{Version: version, Dirty: dirty}, nil
}

// Force records version as applied without running anything. Used to clear
// a dirty flag after a manual fix.
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database driver.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(
		wrapIf("close migration source", srcErr),
		wrapIf("close migration driver", dbErr),
	)
}

// MigrateUp opens dsn, applies every pending migration and closes the handle.
func MigrateUp(ctx context.Context, dsn, dbName string, logger *slog.Logger) (Status, error) {
	db, err := OpenSQL(ctx, dsn)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = db.Close() }()

	migrator, err := NewMigrator(db, dbName)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = migrator.Close() }()

	if logger != nil {
		migrator.WithLogger(logger)
	}
	if err := migrator.Up(); err != nil {
		return Status{}, err
	}
	return migrator.Status()
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func wrapIf(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool {
	return false
}
