// Package sql stores optimization records in a relational database through gorm.
package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// insertBatchSize bounds the rows of one INSERT statement.
const insertBatchSize = 100

// HistoryRepository implements port.HistoryRepository on gorm.
type HistoryRepository struct {
	db      *gorm.DB
	backend string
}

// NewHistoryRepository creates a HistoryRepository. backend names the database type in errors.
func NewHistoryRepository(db *gorm.DB, backend string) *HistoryRepository {
	return &HistoryRepository{db: db, backend: backend}
}

// Load returns the record of study, or (nil, nil) when none was saved.
func (r *HistoryRepository) Load(ctx context.Context, study string) (*model.OptimizationRecord, error) {
	db := r.db.WithContext(ctx)

	var header StudyEntity
	err := db.Where("study = ?", study).Take(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failure("load", err)
	}

	var observations []ObservationEntity
	if err := db.Where("study = ?", study).Order("seq").Find(&observations).Error; err != nil {
		return nil, r.failure("load", err)
	}

	record, err := toDomainRecord(&header, observations)
	if err != nil {
		return nil, r.failure("load", err)
	}
	if record.Version > model.OptimizationRecordVersion {
		return nil, r.failure("load", fmt.Errorf("study '%s' has record version %d, this build reads up to %d", study, record.Version, model.OptimizationRecordVersion))
	}
	return record, nil
}

// Save replaces the stored record of record.Study in a single transaction.
func (r *HistoryRepository) Save(ctx context.Context, record *model.OptimizationRecord) error {
	header, observations, err := fromDomainRecord(record)
	if err != nil {
		return r.failure("save", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("study = ?", header.Study).Delete(&ObservationEntity{}).Error; err != nil {
			return fmt.Errorf("delete observations: %w", err)
		}
		if err := tx.Where("study = ?", header.Study).Delete(&StudyEntity{}).Error; err != nil {
			return fmt.Errorf("delete study: %w", err)
		}
		if err := tx.Create(header).Error; err != nil {
			return fmt.Errorf("insert study: %w", err)
		}
		if len(observations) > 0 {
			if err := tx.CreateInBatches(observations, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert observations: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return r.failure("save", err)
	}
	logger.Debugf("HistoryRepository: saved study '%s' with %d observations.", header.Study, len(observations))
	return nil
}

// Close closes the underlying connection pool.
func (r *HistoryRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *HistoryRepository) failure(op string, err error) error {
	return &exception.PersistenceFailure{Backend: r.backend, Op: op, Err: err}
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
