package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

type mockIssuer struct{ mock.Mock }

func (m *mockIssuer) Issue(ctx context.Context, trial model.Trial, workloads []model.Workload, nodes []string, maxPerNode int, resume bool) (model.IssueReport, error) {
	args := m.Called(ctx, trial, workloads, nodes, maxPerNode, resume)
	return args.Get(0).(model.IssueReport), args.Error(1)
}

type mockMonitor struct{ mock.Mock }

func (m *mockMonitor) AwaitAll(ctx context.Context, trialNames []string, baseDir string, pollInterval time.Duration) ([]string, error) {
	args := m.Called(ctx, trialNames, baseDir, pollInterval)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

type mockScorer struct{ mock.Mock }

func (m *mockScorer) Score(ctx context.Context, trialName, baseDir string, env config.EnvironmentConfig) (string, error) {
	args := m.Called(ctx, trialName, baseDir, env)
	return args.String(0), args.Error(1)
}

func (m *mockScorer) ExtractScore(reportPath string) float64 {
	return m.Called(reportPath).Get(0).(float64)
}

var testSettings = Settings{
	Nodes:        []string{"node1", "node2"},
	MaxPerNode:   2,
	Resume:       true,
	BaseDir:      "/nfs/out",
	PollInterval: time.Second,
}

func TestRun_IssuesWaitsAndScores(t *testing.T) {
	issuer, monitor, scorer := &mockIssuer{}, &mockMonitor{}, &mockScorer{}
	trials := []model.Trial{{Name: "a"}, {Name: "b"}}
	workloads := []model.Workload{{Name: "gcc"}}

	for _, tr := range trials {
		issuer.On("Issue", mock.Anything, tr, workloads, testSettings.Nodes, 2, true).
			Return(model.IssueReport{TrialName: tr.Name, Total: 1, Dispatched: 1}, nil).Once()
	}
	monitor.On("AwaitAll", mock.Anything, []string{"a", "b"}, "/nfs/out", time.Second).Return([]string{"a", "b"}, nil).Once()
	scorer.On("Score", mock.Anything, "a", "/nfs/out", mock.Anything).Return("/nfs/out/a.score.txt", nil).Once()
	scorer.On("Score", mock.Anything, "b", "/nfs/out", mock.Anything).Return("/nfs/out/b.score.txt", errors.New("exit status 1")).Once()
	scorer.On("ExtractScore", "/nfs/out/a.score.txt").Return(12.5).Once()
	scorer.On("ExtractScore", "/nfs/out/b.score.txt").Return(0.0).Once()

	r := NewRunner(issuer, monitor, scorer, testSettings, nil, nil)
	results, err := r.Run(context.Background(), trials, workloads)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 12.5, results[0].Score)
	assert.False(t, results[0].ScoreMissing)
	assert.True(t, results[1].ScoreMissing)
	assert.Equal(t, 1, results[1].Issue.Dispatched)

	issuer.AssertExpectations(t)
	monitor.AssertExpectations(t)
	scorer.AssertExpectations(t)
}

func TestRun_JobFailuresDoNotStopTrial(t *testing.T) {
	issuer, monitor, scorer := &mockIssuer{}, &mockMonitor{}, &mockScorer{}
	failed := []error{&exception.JobError{Fingerprint: "/nfs/out/a/mcf_1_0.5", Err: errors.New("dial refused")}}
	issuer.On("Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.IssueReport{Total: 2, Dispatched: 1, Failed: failed}, nil)
	monitor.On("AwaitAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]string{"a"}, nil)
	scorer.On("Score", mock.Anything, "a", mock.Anything, mock.Anything).Return("/nfs/out/a.score.txt", nil)
	scorer.On("ExtractScore", mock.Anything).Return(3.0)

	results, err := NewRunner(issuer, monitor, scorer, testSettings, nil, nil).Run(context.Background(), []model.Trial{{Name: "a"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, results[0].Score)
	assert.Len(t, results[0].Issue.Failed, 1)
}

func TestRun_CancellationStopsBeforeScoring(t *testing.T) {
	issuer, monitor, scorer := &mockIssuer{}, &mockMonitor{}, &mockScorer{}
	issuer.On("Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.IssueReport{Total: 1, Dispatched: 1}, nil)
	monitor.On("AwaitAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)

	_, err := NewRunner(issuer, monitor, scorer, testSettings, nil, nil).Run(context.Background(), []model.Trial{{Name: "a"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	scorer.AssertNotCalled(t, "Score", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_IssueError(t *testing.T) {
	issuer, monitor, scorer := &mockIssuer{}, &mockMonitor{}, &mockScorer{}
	issuer.On("Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.IssueReport{}, context.DeadlineExceeded)

	_, err := NewRunner(issuer, monitor, scorer, testSettings, nil, nil).Run(context.Background(), []model.Trial{{Name: "a"}, {Name: "b"}}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	issuer.AssertNumberOfCalls(t, "Issue", 1)
	monitor.AssertNotCalled(t, "AwaitAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Sweep.Servers = []string{"n1"}
	cfg.Sweep.Running.OutputBaseDir = "/nfs/out"
	cfg.Sweep.Running.MaxProcPerServer = 3
	cfg.Sweep.Monitor.PollingIntervalSeconds = 5

	s := SettingsFromConfig(cfg)
	assert.Equal(t, []string{"n1"}, s.Nodes)
	assert.Equal(t, "/nfs/out", s.BaseDir)
	assert.Equal(t, 3, s.MaxPerNode)
	assert.Equal(t, 5*time.Second, s.PollInterval)
}
