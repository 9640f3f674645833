// Package automigrate runs pending database migrations on startup.
package automigrate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/migrations"
)

// Run applies all pending up migrations from the embedded schema.
func Run(databaseURL string) error {
	return RunFS(databaseURL, migrations.FS)
}

// RunFS applies all pending up migrations found at the root of source. It
// uses a dedicated connection that is closed before returning.
func RunFS(databaseURL string, source fs.FS) error {
	log := logger.WithComponent("automigrate")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	m, err := newMigrator(db, source)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warn().AnErr("source_error", sourceErr).AnErr("db_error", dbErr).Msg("failed to close migrator")
		}
	}()

	before, dirty, err := currentVersion(m)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d; run the migrate force command", before)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Uint("version", before).Msg("database up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	after, _, err := currentVersion(m)
	if err != nil {
		return err
	}
	logApplied(log, before, after)
	return nil
}

func newMigrator(db *sql.DB, source fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func logApplied(log zerolog.Logger, before, after uint) {
	log.Info().
		Uint("from_version", before).
		Uint("to_version", after).
		Msg("migrations applied")
}
