// Package migrations applies the SQL files under migrations/ to Postgres.
package migrations

import (
	"errors"
	"fmt"
	"os"

	"ms-registration/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"
)

type Options struct {
	// MigrationsDir holds the NNNNNN_name.{up,down}.sql files.
	MigrationsDir string
}

// Runner drives golang-migrate over the service's own *bun.DB connection.
type Runner struct {
	bunDB    *bun.DB
	options  Options
	log      *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(bunDB *bun.DB, opts Options, log *logger.Logger) *Runner {
	return &Runner{bunDB: bunDB, options: opts, log: log}
}

// Initialize opens the migration source and database driver. The other
// methods call it on first use.
func (r *Runner) Initialize() error {
	if r.migrator != nil {
		return nil
	}
	if _, err := os.Stat(r.options.MigrationsDir); err != nil {
		return fmt.Errorf("migrations directory %s: %w", r.options.MigrationsDir, err)
	}
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+r.options.MigrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	r.migrator = m
	return nil
}

// apply runs step and treats "no change" as success.
func (r *Runner) apply(desc string, step func(m *migrate.Migrate) error) error {
	if err := r.Initialize(); err != nil {
		return err
	}
	if err := step(r.migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("MIGRATE", fmt.Sprintf("%s: nothing to do", desc))
			return nil
		}
		return fmt.Errorf("%s: %w", desc, err)
	}
	if v, dirty, err := r.Version(); err == nil {
		r.log.Info("MIGRATE", fmt.Sprintf("%s: schema at version %d (dirty: %t)", desc, v, dirty))
	}
	return nil
}

// MigrateUp applies every pending migration. A dirty version left behind by
// a crashed run is forced clean first so the failed file is retried.
func (r *Runner) MigrateUp() error {
	v, dirty, err := r.Version()
	if err != nil {
		return err
	}
	if dirty {
		r.log.Warn("MIGRATE", fmt.Sprintf("Schema version %d is dirty, forcing before retry", v))
		if err := r.Force(int(v)); err != nil {
			return err
		}
	}
	return r.apply("migrate up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back steps migrations, or all of them when steps <= 0.
func (r *Runner) MigrateDown(steps int) error {
	if steps <= 0 {
		return r.apply("migrate down", func(m *migrate.Migrate) error { return m.Down() })
	}
	return r.apply(fmt.Sprintf("migrate down %d", steps), func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

// MigrateTo moves the schema up or down to version.
func (r *Runner) MigrateTo(version uint) error {
	return r.apply(fmt.Sprintf("migrate to %d", version), func(m *migrate.Migrate) error { return m.Migrate(version) })
}

// Force records version as applied and clean without running anything.
func (r *Runner) Force(version int) error {
	if err := r.Initialize(); err != nil {
		return err
	}
	if err := r.migrator.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Version reports the applied version and whether it is dirty. A database
// without migrations reports version 0.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.Initialize(); err != nil {
		return 0, false, err
	}
	v, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, dbErr := r.migrator.Close()
	return errors.Join(sourceErr, dbErr)
}
