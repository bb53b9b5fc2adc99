// Package checkpoint finds the checkpoint files to simulate for each workload.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// namePattern extracts the instruction count and the weight from a checkpoint basename,
// e.g. "_12000000000_0.051245_.zstd".
var namePattern = regexp.MustCompile(`(\d+)_([0-9]*\.?[0-9]+)`)

// ParseName returns the instruction count and weight encoded in a checkpoint basename.
func ParseName(base string) (instCount, weight string, ok bool) {
	m := namePattern.FindStringSubmatch(base)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Discoverer selects checkpoints under the workloads root.
type Discoverer struct {
	root      string
	patterns  []string
	runWeight float64
}

// NewDiscoverer creates a Discoverer from the workloads settings.
func NewDiscoverer(cfg config.WorkloadsConfig) *Discoverer {
	patterns := cfg.CheckpointPatterns
	if len(patterns) == 0 {
		patterns = []string{"*.zstd", "*.gz"}
	}
	return &Discoverer{
		root:      config.ExpandHome(cfg.WorkloadsPath),
		patterns:  patterns,
		runWeight: cfg.RunWeight,
	}
}

type weighted struct {
	model.Checkpoint
	value float64
}

// Discover returns the heaviest checkpoints of the workloads matching name until their
// cumulative weight reaches the run weight. name may be a glob.
func (d *Discoverer) Discover(name string) (model.Workload, error) {
	wl := model.Workload{Name: name}

	dirs, err := filepath.Glob(filepath.Join(d.root, name))
	if err != nil {
		return wl, fmt.Errorf("invalid workload pattern %q: %w", name, err)
	}
	sort.Strings(dirs)

	var candidates []weighted
	for _, dir := range dirs {
		found, err := d.scan(dir)
		if err != nil {
			return wl, err
		}
		candidates = append(candidates, found...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	cumulative := 0.0
	for _, c := range candidates {
		if cumulative >= d.runWeight {
			break
		}
		wl.Checkpoints = append(wl.Checkpoints, c.Checkpoint)
		cumulative += c.value
	}
	logger.Debugf("Checkpoint: workload '%s' selected %d of %d checkpoints (weight %.4f).", name, len(wl.Checkpoints), len(candidates), cumulative)
	return wl, nil
}

// DiscoverAll runs Discover for each name in order. Workloads without checkpoints are kept empty.
func (d *Discoverer) DiscoverAll(names []string) ([]model.Workload, error) {
	out := make([]model.Workload, 0, len(names))
	for _, name := range names {
		wl, err := d.Discover(name)
		if err != nil {
			return nil, err
		}
		if len(wl.Checkpoints) == 0 {
			logger.Warnf("Checkpoint: no checkpoints found for workload '%s' under %s.", name, d.root)
		}
		out = append(out, wl)
	}
	return out, nil
}

func (d *Discoverer) scan(dir string) ([]weighted, error) {
	var out []weighted
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !d.matches(entry.Name()) {
			return nil
		}
		inst, weight, ok := ParseName(entry.Name())
		if !ok {
			return nil
		}
		v, err := strconv.ParseFloat(weight, 64)
		if err != nil {
			return nil
		}
		out = append(out, weighted{
			Checkpoint: model.Checkpoint{Path: path, InstCount: inst, Weight: weight},
			value:      v,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints under %s: %w", dir, err)
	}
	return out, nil
}

func (d *Discoverer) matches(base string) bool {
	for _, p := range d.patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
