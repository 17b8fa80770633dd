package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrate applies pending migrations. steps > 0 moves that many versions up,
// steps < 0 rolls back, and 0 migrates all the way up.
func Migrate(dsn string, steps int) (MigrationStatus, error) {
	var status MigrationStatus
	err := withMigrator(dsn, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("checking migration version: %w", err)
		}
		if dirty {
			return fmt.Errorf("database is in a dirty state (version %d), manual intervention required", version)
		}

		if steps != 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("applying migrations: %w", err)
		}

		status.Version, status.Dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return status, err
}

func MigrateDown(dsn string) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rolling back migrations: %w", err)
		}
		return nil
	})
}

func MigrationVersion(dsn string) (MigrationStatus, error) {
	var status MigrationStatus
	err := withMigrator(dsn, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		status = MigrationStatus{Version: version, Dirty: dirty}
		return err
	})
	return status, err
}

func ForceMigrationVersion(dsn string, version int) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("forcing version: %w", err)
		}
		return nil
	})
}

func withMigrator(dsn string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("opening database connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	return fn(m)
}
