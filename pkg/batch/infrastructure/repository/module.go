// Package repository selects the backend that persists optimization records.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm"
	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	filerepo "github.com/tigerroll/simsweep/pkg/batch/infrastructure/repository/file"
	sqlrepo "github.com/tigerroll/simsweep/pkg/batch/infrastructure/repository/sql"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// NewHistoryRepository builds the backend named by optimization.history.type.
// The database backend migrates its schema on a dedicated connection before use.
func NewHistoryRepository(cfg *config.Config, provider *gormadapter.Provider) (port.HistoryRepository, error) {
	hc := cfg.Sweep.Optimization.History
	switch hc.Type {
	case "", "file":
		path := filerepo.ResolvePath(hc.Path, cfg.Sweep.Running.OutputBaseDir)
		logger.Infof("History: file backend at %s.", path)
		return filerepo.NewHistoryRepository(path), nil
	case "database":
		dbConfig, err := provider.Config(hc.DBRef)
		if err != nil {
			return nil, exception.NewConfigError("optimization.history.db_ref", err)
		}
		if err := migrate(dbConfig, cfg.Sweep.System.Logging.Level); err != nil {
			return nil, &exception.PersistenceFailure{Backend: dbConfig.Type, Op: "migrate", Err: err}
		}
		db, err := provider.GetConnection(hc.DBRef)
		if err != nil {
			return nil, &exception.PersistenceFailure{Backend: dbConfig.Type, Op: "connect", Err: err}
		}
		logger.Infof("History: database backend '%s' (%s).", hc.DBRef, dbConfig.Type)
		return sqlrepo.NewHistoryRepository(db, dbConfig.Type), nil
	default:
		return nil, exception.NewConfigError(fmt.Sprintf("unsupported optimization.history.type '%s'", hc.Type), nil)
	}
}

func migrate(dbConfig config.DatabaseConfig, logLevel string) error {
	db, err := gormadapter.Open(dbConfig, logLevel)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlrepo.Migrate(sqlDB, dbConfig.Type)
}

// NewHistoryRepositoryFx closes the repository on shutdown.
func NewHistoryRepositoryFx(lc fx.Lifecycle, cfg *config.Config, provider *gormadapter.Provider) (port.HistoryRepository, error) {
	repo, err := NewHistoryRepository(cfg, provider)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}

// Module provides port.HistoryRepository.
var Module = fx.Options(
	fx.Provide(NewHistoryRepositoryFx),
)
