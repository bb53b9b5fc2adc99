// Package sqlite registers the SQLite dialector.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the database file path with foreign keys and a busy timeout enabled.
func ConnectionString(c config.DatabaseConfig) string {
	return config.ExpandHome(c.Database) + "?_foreign_keys=on&_busy_timeout=5000"
}
