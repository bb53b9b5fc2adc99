// Package file stores optimization records as YAML documents on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

const backendName = "file"

// HistoryRepository keeps one study's record in a single YAML file.
// Save writes a sibling temp file and renames it over the record, so a crash
// leaves either the previous or the new record on disk.
type HistoryRepository struct {
	path string
	mu   sync.Mutex
}

// NewHistoryRepository creates a HistoryRepository for path.
func NewHistoryRepository(path string) *HistoryRepository {
	return &HistoryRepository{path: path}
}

// ResolvePath expands a leading "~" and places a relative path under baseDir.
func ResolvePath(path, baseDir string) string {
	path = config.ExpandHome(path)
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(config.ExpandHome(baseDir), path)
}

// Path returns the record file.
func (r *HistoryRepository) Path() string {
	return r.path
}

// Load reads the record. A missing file means the study has no history.
func (r *HistoryRepository) Load(ctx context.Context, study string) (*model.OptimizationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failure("load", err)
	}

	var record model.OptimizationRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, r.failure("load", fmt.Errorf("decode %s: %w", r.path, err))
	}
	if record.Version > model.OptimizationRecordVersion {
		return nil, r.failure("load", fmt.Errorf("%s has record version %d, this build reads up to %d", r.path, record.Version, model.OptimizationRecordVersion))
	}
	if record.Study != "" && record.Study != study {
		return nil, r.failure("load", fmt.Errorf("%s belongs to study '%s', not '%s'", r.path, record.Study, study))
	}
	if record.Study == "" {
		record.Study = study
	}
	logger.Debugf("HistoryRepository: loaded %d observations from %s.", record.Len(), r.path)
	return &record, nil
}

// Save atomically replaces the record file.
func (r *HistoryRepository) Save(ctx context.Context, record *model.OptimizationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return r.failure("save", fmt.Errorf("encode: %w", err))
	}
	if err := writeAtomic(r.path, data); err != nil {
		return r.failure("save", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between calls.
func (r *HistoryRepository) Close() error {
	return nil
}

func (r *HistoryRepository) failure(op string, err error) error {
	return &exception.PersistenceFailure{Backend: backendName, Op: op, Err: err}
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	committed = true

	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
