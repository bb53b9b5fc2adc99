package score

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, host, cmd string) ([]byte, error) {
	args := m.Called(ctx, host, cmd)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockRunner) Start(ctx context.Context, host, cmd string) error {
	return m.Called(ctx, host, cmd).Error(0)
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Sweep.Workloads.WorkloadsPath = "/nfs/cpts"
	return cfg
}

func TestExtractScore_ReportWithScore(t *testing.T) {
	s, err := NewScorer(testConfig(), &mockRunner{})
	require.NoError(t, err)

	report := filepath.Join(t.TempDir(), "config_1.score.txt")
	require.NoError(t, os.WriteFile(report, []byte("gcc 10.1\nmcf 9.2\nEstimated Int score per GHz: 12.34\nEstimated FP score per GHz: 8.00\n"), 0o644))

	assert.Equal(t, 12.34, s.ExtractScore(report))
}

func TestExtractScore_Missing(t *testing.T) {
	s, err := NewScorer(testConfig(), &mockRunner{})
	require.NoError(t, err)

	report := filepath.Join(t.TempDir(), "empty.score.txt")
	require.NoError(t, os.WriteFile(report, []byte("Traceback (most recent call last):\n"), 0o644))
	assert.Equal(t, 0.0, s.ExtractScore(report))

	assert.Equal(t, 0.0, s.ExtractScore(filepath.Join(t.TempDir(), "absent.txt")))
}

func TestParseScore(t *testing.T) {
	s, err := NewScorer(testConfig(), &mockRunner{})
	require.NoError(t, err)

	v, err := s.ParseScore("Estimated Int score per GHz: 7")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	_, err = s.ParseScore("no score here")
	assert.ErrorIs(t, err, exception.ErrScoreMissing)

	_, err = s.ParseScore("Estimated Int score per GHz: ...")
	assert.ErrorIs(t, err, exception.ErrScoreMissing)
}

func TestNewScorer_CustomPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Sweep.Scoring.Pattern = `IPC: ([\d.]+)`
	s, err := NewScorer(cfg, &mockRunner{})
	require.NoError(t, err)
	v, err := s.ParseScore("cycles 100\nIPC: 1.75\n")
	require.NoError(t, err)
	assert.Equal(t, 1.75, v)

	cfg.Sweep.Scoring.Pattern = `IPC: [\d.]+`
	_, err = NewScorer(cfg, &mockRunner{})
	assert.Error(t, err)

	cfg.Sweep.Scoring.Pattern = `(`
	_, err = NewScorer(cfg, &mockRunner{})
	assert.Error(t, err)
}

func TestScore_RendersDefaultCommand(t *testing.T) {
	runner := &mockRunner{}
	want := "export PYTHONPATH=/nfs/dp:$PYTHONPATH && cd /nfs/dp && " +
		"bash example-scripts/gem5-score-ci.sh /nfs/out/config_1 /nfs/cpts/cluster-0-0.json > /nfs/out/config_1.score.txt"
	runner.On("Run", mock.Anything, "localhost", want).Return([]byte(""), nil).Once()

	s, err := NewScorer(testConfig(), runner)
	require.NoError(t, err)

	report, err := s.Score(context.Background(), "config_1", "/nfs/out", config.EnvironmentConfig{DataProcHome: "/nfs/dp"})
	require.NoError(t, err)
	assert.Equal(t, "/nfs/out/config_1.score.txt", report)
	runner.AssertExpectations(t)
}

func TestScore_Spec2017AndQuoting(t *testing.T) {
	cfg := testConfig()
	cfg.Sweep.Workloads.WorkloadVersion = "spec17"
	s, err := NewScorer(cfg, &mockRunner{})
	require.NoError(t, err)

	cmd, err := s.Command("my trial", "/nfs/out", config.EnvironmentConfig{DataProcHome: "/nfs/dp"})
	require.NoError(t, err)
	assert.Contains(t, cmd, "gem5-score-ci-17.sh '/nfs/out/my trial' ")
	assert.Contains(t, cmd, "> '/nfs/out/my trial.score.txt'")
}

func TestScore_CommandFailure(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "localhost", mock.Anything).Return([]byte("No such file"), errors.New("exit status 2")).Once()

	s, err := NewScorer(testConfig(), runner)
	require.NoError(t, err)

	report, err := s.Score(context.Background(), "config_1", "/nfs/out", config.EnvironmentConfig{})
	assert.Error(t, err)
	assert.Equal(t, "/nfs/out/config_1.score.txt", report)
}

func TestScore_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Sweep.Scoring.TimeoutSeconds = 1
	runner := &mockRunner{}
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Second
	}), "localhost", mock.Anything).Return([]byte(""), nil).Once()

	s, err := NewScorer(cfg, runner)
	require.NoError(t, err)
	_, err = s.Score(context.Background(), "config_1", "/nfs/out", config.EnvironmentConfig{})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}
