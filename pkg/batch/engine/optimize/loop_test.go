package optimize

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	runner "github.com/tigerroll/simsweep/pkg/batch/engine/runner"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

type mockTrialRunner struct {
	mock.Mock
}

func (m *mockTrialRunner) Run(ctx context.Context, trials []model.Trial, workloads []model.Workload) ([]runner.TrialResult, error) {
	args := m.Called(ctx, trials, workloads)
	if fn, ok := args.Get(0).(func(context.Context, []model.Trial, []model.Workload) ([]runner.TrialResult, error)); ok {
		return fn(ctx, trials, workloads)
	}
	results, _ := args.Get(0).([]runner.TrialResult)
	return results, args.Error(1)
}

// scoreBySize returns a runner whose score grows with the integer dimension.
func scoreBySize(m *mockTrialRunner) {
	m.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(func(ctx context.Context, trials []model.Trial, _ []model.Workload) ([]runner.TrialResult, error) {
		return []runner.TrialResult{{Trial: trials[0], Score: float64(trials[0].Point[1].(int))}}, nil
	}, nil)
}

// memHistory keeps a deep copy of every saved record.
type memHistory struct {
	mu      sync.Mutex
	stored  *model.OptimizationRecord
	saves   int
	saveErr error
}

func (h *memHistory) Load(ctx context.Context, study string) (*model.OptimizationRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stored == nil {
		return nil, nil
	}
	return cloneRecord(h.stored), nil
}

func (h *memHistory) Save(ctx context.Context, record *model.OptimizationRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveErr != nil {
		return h.saveErr
	}
	h.saves++
	h.stored = cloneRecord(record)
	return nil
}

func (h *memHistory) Close() error { return nil }

func cloneRecord(r *model.OptimizationRecord) *model.OptimizationRecord {
	c := *r
	c.Dimensions = append([]string(nil), r.Dimensions...)
	c.Observations = nil
	for _, o := range r.Observations {
		o.Point = append([]any(nil), o.Point...)
		c.Observations = append(c.Observations, o)
	}
	return &c
}

func smallSpace() *Space {
	return &Space{Dimensions: []Dimension{
		{Name: "--l2-size", Type: DimensionCategorical, Choices: []any{"512kB", "1MB"}},
		{Name: "--width", Type: DimensionInteger, Low: 1, High: 16},
	}}
}

func loopConfig(nCalls int) LoopConfig {
	return LoopConfig{
		Study:          "l2",
		ScriptPath:     "/nfs/gem5/configs/xs.py",
		BaseParams:     []string{"--base"},
		ConstantParams: []string{"--const=1"},
		NCalls:         nCalls,
		Optimizer:      OptimizerConfig{NInitialPoints: 2, RandomState: 42, Kappa: 1.96, AcqSamples: 64},
	}
}

func TestLoop_Trial(t *testing.T) {
	l := NewLoop(loopConfig(1), smallSpace(), nil, nil, nil)
	trial := l.Trial([]any{"1MB", 4})
	assert.Equal(t, "config_1MB_4", trial.Name)
	assert.Equal(t, "/nfs/gem5/configs/xs.py", trial.ScriptPath)
	assert.Equal(t, []string{"--base", "--const=1", "--l2-size=1MB", "--width=4"}, trial.Params)
}

func TestLoop_FreshStudy(t *testing.T) {
	trials := &mockTrialRunner{}
	scoreBySize(trials)
	history := &memHistory{}

	res, err := NewLoop(loopConfig(4), smallSpace(), trials, history, nil).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, 4, res.Record.Len())
	assert.Equal(t, 4, history.saves, "the record is saved after every observation")
	assert.NotEmpty(t, res.Record.RunID)
	assert.Equal(t, []string{"--l2-size", "--width"}, res.Record.Dimensions)
	trials.AssertNumberOfCalls(t, "Run", 4)

	for _, o := range res.Record.Observations {
		assert.Equal(t, -float64(o.Point[1].(int)), o.Score, "observations hold the negated score")
		assert.Equal(t, "config_"+FormatValue(o.Point[0])+"_"+FormatValue(o.Point[1]), o.TrialName)
	}
	best, _ := res.Record.Best()
	assert.Equal(t, best, res.Best)
}

func TestLoop_ResumeAddsExactlyTheMissingEvaluations(t *testing.T) {
	history := &memHistory{}
	first := &mockTrialRunner{}
	scoreBySize(first)
	_, err := NewLoop(loopConfig(3), smallSpace(), first, history, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	before := cloneRecord(history.stored)

	second := &mockTrialRunner{}
	scoreBySize(second)
	res, err := NewLoop(loopConfig(3+2), smallSpace(), second, history, nil).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Evaluated)
	require.Equal(t, 5, history.stored.Len())
	assert.Equal(t, before.Observations, history.stored.Observations[:3])
	assert.Equal(t, before.RunID, history.stored.RunID)
	second.AssertNumberOfCalls(t, "Run", 2)
}

func TestLoop_CompletedStudyRunsNothing(t *testing.T) {
	history := &memHistory{stored: &model.OptimizationRecord{
		Study:      "l2",
		RunID:      "r1",
		Dimensions: []string{"--l2-size", "--width"},
		Observations: []model.Observation{
			{Point: []any{"1MB", 8}, Score: -8, TrialName: "config_1MB_8"},
			{Point: []any{"512kB", 2}, Score: -2, TrialName: "config_512kB_2"},
		},
	}}
	trials := &mockTrialRunner{}

	res, err := NewLoop(loopConfig(2), smallSpace(), trials, history, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, "config_1MB_8", res.Best.TrialName)
	trials.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoop_PersistenceFailureIsFatal(t *testing.T) {
	trials := &mockTrialRunner{}
	scoreBySize(trials)
	history := &memHistory{saveErr: errors.New("disk full")}

	_, err := NewLoop(loopConfig(5), smallSpace(), trials, history, nil).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, exception.IsPersistenceFailure(err))
	trials.AssertNumberOfCalls(t, "Run", 1)
}

func TestLoop_DimensionMismatch(t *testing.T) {
	history := &memHistory{stored: &model.OptimizationRecord{
		Study:        "l2",
		Dimensions:   []string{"--l3-size"},
		Observations: []model.Observation{{Point: []any{"2MB"}, Score: -1}},
	}}
	_, err := NewLoop(loopConfig(3), smallSpace(), &mockTrialRunner{}, history, nil).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestLoop_TrialErrorStopsWithoutSaving(t *testing.T) {
	trials := &mockTrialRunner{}
	trials.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)
	history := &memHistory{}

	_, err := NewLoop(loopConfig(3), smallSpace(), trials, history, nil).Run(context.Background(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, history.saves)
}
