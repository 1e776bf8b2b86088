package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"

	// File source driver for reading migration files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SchemaVersion is the migration the auth code is written against: users
// (1) and the auth audit log (2).
const SchemaVersion = 2

// RunMigrations applies all pending migrations from migrationsPath.
// Already-applied migrations are skipped, so this runs on every startup.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if err := checkSchemaVersion(version, dirty); err != nil {
		return err
	}

	slog.Info("migrations applied", slog.Uint64("version", uint64(version)))
	return nil
}

// checkSchemaVersion refuses to serve sign-ins against a half-applied or
// outdated schema: a missing audit table would fail every sign-in later.
func checkSchemaVersion(version uint, dirty bool) error {
	if dirty {
		return fmt.Errorf("schema version %d is dirty; fix it by hand and force the version", version)
	}
	if version < SchemaVersion {
		return fmt.Errorf("schema version %d is older than required version %d", version, SchemaVersion)
	}
	return nil
}
