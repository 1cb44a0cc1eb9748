package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration to db. driverName is "sqlite3" or
// "postgres". A postgres handle is always closed before Migrate returns, so
// callers pass a dedicated one; a sqlite handle stays open.
func Migrate(db *sql.DB, driverName string) error {
	owned := driverName == "postgres"
	var m *migrate.Migrate
	defer func() {
		// Once m exists, m.Close releases the postgres handle.
		if owned && m == nil {
			_ = db.Close()
		}
	}()

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	var driver database.Driver
	switch driverName {
	case "sqlite3":
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", driverName)
	}
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("init migrate driver: %w", err)
	}

	m, err = migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		_ = src.Close()
		if owned {
			_ = driver.Close()
		}
		return fmt.Errorf("init migrate: %w", err)
	}
	if owned {
		defer m.Close()
	} else {
		// m.Close would also close db, which the ledger still owns.
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
