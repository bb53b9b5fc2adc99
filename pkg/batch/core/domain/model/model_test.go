package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeSnapshot_Admits(t *testing.T) {
	tests := []struct {
		name string
		snap NodeSnapshot
		max  int
		want bool
	}{
		{"idle node", NodeSnapshot{RunningCount: 0, LoadAverage: 0.5, CoreCount: 64}, 1, true},
		{"at limit still admits", NodeSnapshot{RunningCount: 1, LoadAverage: 0.5, CoreCount: 64}, 1, true},
		{"over limit", NodeSnapshot{RunningCount: 2, LoadAverage: 0.5, CoreCount: 64}, 1, false},
		{"load at half cores", NodeSnapshot{RunningCount: 0, LoadAverage: 32, CoreCount: 64}, 8, false},
		{"load just below half", NodeSnapshot{RunningCount: 0, LoadAverage: 31.99, CoreCount: 64}, 8, true},
		{"no cores reported", NodeSnapshot{RunningCount: 0, LoadAverage: 0, CoreCount: 0}, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.Admits(tt.max))
		})
	}
}

func TestJobOutputDir_IsFingerprint(t *testing.T) {
	dir := JobOutputDir("/nfs/sweep", "config_4_true", "gcc_166", "12000000000", "0.0512")
	assert.Equal(t, "/nfs/sweep/config_4_true/gcc_166_12000000000_0.0512", dir)

	a := Job{Workload: "gcc_166", OutputDir: dir}
	b := Job{Workload: "gcc_166", CheckpointPath: "/other/path", OutputDir: dir}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestJobState(t *testing.T) {
	assert.Equal(t, JobStateComplete, StateFromClassification(true, true))
	assert.Equal(t, JobStateError, StateFromClassification(false, true))
	assert.Equal(t, JobStateUnknown, StateFromClassification(false, false))
	assert.True(t, JobStateComplete.IsTerminal())
	assert.True(t, JobStateError.IsTerminal())
	assert.False(t, JobStateUnknown.IsTerminal())
	assert.False(t, JobStateDispatched.IsTerminal())
}

func TestRunSummary_Finished(t *testing.T) {
	assert.True(t, RunSummary{Complete: 2, Error: 1, Total: 3}.Finished())
	assert.False(t, RunSummary{Complete: 2, Total: 3}.Finished())
	assert.Equal(t, 1, RunSummary{Complete: 2, Total: 3}.Running())
}

func TestOptimizationRecord_BestAndRanking(t *testing.T) {
	r := NewOptimizationRecord("l2", "run-1", []string{"--l2-size"})
	_, ok := r.Best()
	assert.False(t, ok)

	r.Append(Observation{Point: []any{1}, Score: -10.5})
	r.Append(Observation{Point: []any{2}, Score: -12.25})
	r.Append(Observation{Point: []any{3}, Score: 0})

	best, ok := r.Best()
	assert.True(t, ok)
	assert.Equal(t, []any{2}, best.Point)

	ranked := r.RankedByMagnitude()
	assert.Equal(t, []float64{-12.25, -10.5, 0}, []float64{ranked[0].Score, ranked[1].Score, ranked[2].Score})
	assert.Equal(t, -10.5, r.Observations[0].Score, "ranking must not reorder the record")
}
