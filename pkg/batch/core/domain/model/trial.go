package model

import (
	"sort"
	"time"
)

// Trial is one architecture configuration: a named point in the parameter space
// that expands into one job per selected checkpoint.
type Trial struct {
	Name       string
	Point      []any
	ScriptPath string
	Params     []string
}

// RunSummary aggregates the classification of every job under a trial's output tree.
type RunSummary struct {
	Complete   int
	Error      int
	Total      int
	ErrorPaths []string
}

// Finished reports whether every job reached a terminal state.
func (s RunSummary) Finished() bool {
	return s.Complete+s.Error == s.Total
}

// Running returns the number of jobs still in flight.
func (s RunSummary) Running() int {
	return s.Total - s.Complete - s.Error
}

// TrialProgress is the monitor's counter for one trial.
type TrialProgress struct {
	Name      string
	Summary   RunSummary
	Finished  bool
	UpdatedAt time.Time
}

// Observation is one evaluated point. Score is the minimized value, i.e. the negated domain score.
type Observation struct {
	Point      []any     `yaml:"point"`
	Score      float64   `yaml:"score"`
	TrialName  string    `yaml:"trial_name"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

// OptimizationRecordVersion is the current layout of OptimizationRecord.
const OptimizationRecordVersion = 1

// OptimizationRecord is the ordered history of observations of one study.
// It is the single source of truth for resuming a search.
type OptimizationRecord struct {
	Version      int           `yaml:"version"`
	Study        string        `yaml:"study"`
	RunID        string        `yaml:"run_id"`
	Dimensions   []string      `yaml:"dimensions"`
	Observations []Observation `yaml:"observations"`
	UpdatedAt    time.Time     `yaml:"updated_at"`
}

// NewOptimizationRecord returns an empty record for study.
func NewOptimizationRecord(study, runID string, dimensions []string) *OptimizationRecord {
	return &OptimizationRecord{
		Version:    OptimizationRecordVersion,
		Study:      study,
		RunID:      runID,
		Dimensions: append([]string(nil), dimensions...),
	}
}

// Len returns the number of observations.
func (r *OptimizationRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Observations)
}

// Append adds an observation to the end of the history.
func (r *OptimizationRecord) Append(o Observation) {
	r.Observations = append(r.Observations, o)
}

// Best returns the observation with the lowest score. The earliest wins a tie.
func (r *OptimizationRecord) Best() (Observation, bool) {
	if r.Len() == 0 {
		return Observation{}, false
	}
	best := r.Observations[0]
	for _, o := range r.Observations[1:] {
		if o.Score < best.Score {
			best = o
		}
	}
	return best, true
}

// RankedByMagnitude returns the observations sorted by |score| descending,
// which for negated scores lists the best configurations first.
func (r *OptimizationRecord) RankedByMagnitude() []Observation {
	out := append([]Observation(nil), r.Observations...)
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Score) > abs(out[j].Score)
	})
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
