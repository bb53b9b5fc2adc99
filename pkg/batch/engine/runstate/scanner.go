package runstate

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Scanner implements port.TreeScanner over a classifier.
type Scanner struct {
	classifier port.JobClassifier
}

// NewScanner creates a Scanner.
func NewScanner(classifier port.JobClassifier) *Scanner {
	return &Scanner{classifier: classifier}
}

// ScanTree classifies every leaf directory under root, root included when it has no subdirectories.
// Entries that vanish during the walk are ignored. A missing root is an empty summary.
func (s *Scanner) ScanTree(root string) (model.RunSummary, error) {
	var summary model.RunSummary

	leaves, err := leafDirs(root)
	if err != nil {
		return summary, err
	}
	for _, dir := range leaves {
		summary.Total++
		complete, failed := s.classifier.Classify(dir)
		switch {
		case complete:
			summary.Complete++
		case failed:
			summary.Error++
			summary.ErrorPaths = append(summary.ErrorPaths, dir)
		}
	}
	sort.Strings(summary.ErrorPaths)
	return summary, nil
}

// leafDirs returns the directories under root that have no subdirectory.
func leafDirs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	hasSubdir := map[string]bool{}
	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed while walking.
				return nil
			}
			if path == root {
				return err
			}
			logger.Debugf("Scanner: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		dirs = append(dirs, path)
		if path != root {
			hasSubdir[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	leaves := dirs[:0]
	for _, dir := range dirs {
		if !hasSubdir[dir] {
			leaves = append(leaves, dir)
		}
	}
	return leaves, nil
}

var _ port.TreeScanner = (*Scanner)(nil)
