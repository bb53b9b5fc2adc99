package sql_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	sqlrepo "github.com/tigerroll/simsweep/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

// setupSQLite migrates a temp-file database and returns a repository on a fresh connection.
func setupSQLite(t *testing.T) *sqlrepo.HistoryRepository {
	t.Helper()
	dbConfig := config.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "history.db")}

	migrationDB, err := gormadapter.Open(dbConfig, "INFO")
	require.NoError(t, err)
	sqlDB, err := migrationDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlrepo.Migrate(sqlDB, "sqlite"))

	db, err := gormadapter.Open(dbConfig, "INFO")
	require.NoError(t, err)
	repo := sqlrepo.NewHistoryRepository(db, "sqlite")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRecord(study string, n int) *model.OptimizationRecord {
	r := model.NewOptimizationRecord(study, "run-1", []string{"l2_size", "rob_entries", "prefetch"})
	r.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		r.Append(model.Observation{
			Point:      []any{"1MB", float64(64 * (i + 1)), i%2 == 0},
			Score:      -float64(i + 1),
			TrialName:  "config_" + string(rune('a'+i)),
			RecordedAt: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
		})
	}
	return r
}

func TestHistoryRepository_SQLiteRoundTrip(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	got, err := repo.Load(ctx, "study-a")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := sampleRecord("study-a", 3)
	require.NoError(t, repo.Save(ctx, want))

	got, err = repo.Load(ctx, "study-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Study, got.Study)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, model.OptimizationRecordVersion, got.Version)
	assert.Equal(t, want.Dimensions, got.Dimensions)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	require.Len(t, got.Observations, 3)
	for i, o := range got.Observations {
		assert.Equal(t, want.Observations[i].Point, o.Point)
		assert.Equal(t, want.Observations[i].Score, o.Score)
		assert.Equal(t, want.Observations[i].TrialName, o.TrialName)
		assert.True(t, want.Observations[i].RecordedAt.Equal(o.RecordedAt))
	}
}

func TestHistoryRepository_SaveReplacesAndIsolatesStudies(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleRecord("study-a", 2)))
	require.NoError(t, repo.Save(ctx, sampleRecord("study-b", 1)))
	require.NoError(t, repo.Save(ctx, sampleRecord("study-a", 4)))

	a, err := repo.Load(ctx, "study-a")
	require.NoError(t, err)
	assert.Equal(t, 4, a.Len())

	b, err := repo.Load(ctx, "study-b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
}

func TestHistoryRepository_LoadRejectsNewerRecordVersion(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	newer := sampleRecord("study-a", 1)
	newer.Version = model.OptimizationRecordVersion + 5
	require.NoError(t, repo.Save(ctx, newer))

	got, err := repo.Load(ctx, "study-a")
	assert.Nil(t, got)
	var pf *exception.PersistenceFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "sqlite", pf.Backend)
	assert.Equal(t, "load", pf.Op)
	assert.ErrorContains(t, err, fmt.Sprintf("record version %d", model.OptimizationRecordVersion+5))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	dbConfig := config.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "history.db")}
	for i := 0; i < 2; i++ {
		db, err := gormadapter.Open(dbConfig, "INFO")
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		assert.NoError(t, sqlrepo.Migrate(sqlDB, "sqlite"))
	}
}

func TestMigrate_UnsupportedType(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	assert.Error(t, sqlrepo.Migrate(sqlDB, "oracle"))
}

// setupMySQLMock returns a repository over a mocked MySQL connection.
func setupMySQLMock(t *testing.T) (*sqlrepo.HistoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)
	return sqlrepo.NewHistoryRepository(gormDB, "mysql"), mock
}

func TestHistoryRepository_SaveBeginFailure(t *testing.T) {
	repo, mock := setupMySQLMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), sampleRecord("study-a", 1))
	require.Error(t, err)

	var pf *exception.PersistenceFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "mysql", pf.Backend)
	assert.Equal(t, "save", pf.Op)
	assert.True(t, exception.IsFatal(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_SaveRollsBackOnDeleteFailure(t *testing.T) {
	repo, mock := setupMySQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `sweep_observation`").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := repo.Save(context.Background(), sampleRecord("study-a", 1))
	assert.True(t, exception.IsPersistenceFailure(err))
	assert.ErrorContains(t, err, "delete observations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_SaveCommits(t *testing.T) {
	repo, mock := setupMySQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `sweep_observation`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `sweep_study`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `sweep_study`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `sweep_observation`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	assert.NoError(t, repo.Save(context.Background(), sampleRecord("study-a", 2)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_LoadQueryFailure(t *testing.T) {
	repo, mock := setupMySQLMock(t)
	mock.ExpectQuery("SELECT \\* FROM `sweep_study`").WillReturnError(errors.New("access denied"))

	got, err := repo.Load(context.Background(), "study-a")
	assert.Nil(t, got)
	var pf *exception.PersistenceFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "load", pf.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_LoadMissingStudy(t *testing.T) {
	repo, mock := setupMySQLMock(t)
	mock.ExpectQuery("SELECT \\* FROM `sweep_study`").WillReturnRows(sqlmock.NewRows([]string{"study", "run_id", "version", "dimensions", "updated_at"}))

	got, err := repo.Load(context.Background(), "study-a")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
