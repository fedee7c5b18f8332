package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/labshot/labshot/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Up applies every pending migration to the given database.
func Up(ctx context.Context, db *sql.DB, logger log.Logger) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not create fs: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Errorf("could not close fs: %s", err)
		}
	}()

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	err = inst.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	logger.Debugf("Migrations applied successfully")
	return nil
}
