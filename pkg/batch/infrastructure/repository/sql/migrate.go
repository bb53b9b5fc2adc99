package sql

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "sweep_schema_migrations"

//go:embed migrations
var migrationsFS embed.FS

// getDatabaseDriver retrieves a migrate/v4 Driver based on the database type.
func getDatabaseDriver(sqlDB *sql.DB, dbType string) (database.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

// Migrate applies the embedded history schema for dbType.
// It owns sqlDB and closes it when done; pass a connection opened for the migration only.
func Migrate(sqlDB *sql.DB, dbType string) error {
	defer sqlDB.Close()
	path := "migrations/" + dbType
	logger.Infof("Executing history migrations (Path: %s, Table: %s)", path, MigrationsTable)

	sourceDriver, err := iofs.New(migrationsFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := getDatabaseDriver(sqlDB, dbType)
	if err != nil {
		sourceDriver.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if _, dirty, verErr := m.Version(); verErr == nil && dirty {
			logger.Errorf("History schema is dirty after a failed migration.")
		}
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", dbType, path, err)
	}
	logger.Debugf("History migrations are up to date.")
	return nil
}
