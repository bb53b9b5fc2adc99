// Package runner drives trials through issue, monitor and score.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Settings are the run-wide inputs of every trial.
type Settings struct {
	Nodes        []string
	MaxPerNode   int
	Resume       bool
	BaseDir      string
	PollInterval time.Duration
	Environment  config.EnvironmentConfig
}

// SettingsFromConfig extracts Settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Nodes:        append([]string(nil), cfg.Sweep.Servers...),
		MaxPerNode:   cfg.Sweep.Running.MaxProcPerServer,
		Resume:       cfg.Sweep.Running.Resume,
		BaseDir:      cfg.OutputBaseDir(),
		PollInterval: cfg.Sweep.Monitor.PollInterval(),
		Environment:  cfg.Sweep.Environment,
	}
}

// TrialResult is the outcome of one trial.
type TrialResult struct {
	Trial        model.Trial
	Issue        model.IssueReport
	ReportPath   string
	Score        float64
	ScoreMissing bool
}

// Runner issues trials, waits for them and scores them.
type Runner struct {
	issuer   port.BatchIssuer
	monitor  port.ProgressMonitor
	scorer   port.TrialScorer
	settings Settings
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewRunner creates a Runner.
func NewRunner(issuer port.BatchIssuer, monitor port.ProgressMonitor, scorer port.TrialScorer, settings Settings, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Runner {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Runner{
		issuer:   issuer,
		monitor:  monitor,
		scorer:   scorer,
		settings: settings,
		recorder: recorder,
		tracer:   tracer,
	}
}

// Run issues every trial, waits until all of them finished and scores each one.
// Job failures and scoring misses are reported in the results; only cancellation is an error.
func (r *Runner) Run(ctx context.Context, trials []model.Trial, workloads []model.Workload) ([]TrialResult, error) {
	results := make([]TrialResult, len(trials))
	names := make([]string, len(trials))
	spans := make([]func(), 0, len(trials))
	defer func() {
		for _, end := range spans {
			end()
		}
	}()

	start := time.Now()
	for i, trial := range trials {
		spanCtx, end := r.tracer.StartTrialSpan(ctx, trial.Name)
		spans = append(spans, end)

		report, err := r.issuer.Issue(spanCtx, trial, workloads, r.settings.Nodes, r.settings.MaxPerNode, r.settings.Resume)
		results[i] = TrialResult{Trial: trial, Issue: report}
		names[i] = trial.Name
		if err != nil {
			r.tracer.RecordError(spanCtx, "runner", err)
			return results, fmt.Errorf("issue trial %s: %w", trial.Name, err)
		}
		if n := len(report.Failed); n > 0 {
			logger.Warnf("Runner: trial '%s' issued with %d failed jobs: %v", trial.Name, n, errors.Join(report.Failed...))
		}
	}
	r.recorder.RecordDuration(ctx, "issue", time.Since(start), nil)

	waitStart := time.Now()
	if _, err := r.monitor.AwaitAll(ctx, names, r.settings.BaseDir, r.settings.PollInterval); err != nil {
		return results, fmt.Errorf("await trials: %w", err)
	}
	r.recorder.RecordDuration(ctx, "monitor", time.Since(waitStart), nil)

	for i, trial := range trials {
		reportPath, err := r.scorer.Score(ctx, trial.Name, r.settings.BaseDir, r.settings.Environment)
		if err != nil && ctx.Err() != nil {
			return results, ctx.Err()
		}
		score := r.scorer.ExtractScore(reportPath)
		missing := score == 0
		results[i].ReportPath = reportPath
		results[i].Score = score
		results[i].ScoreMissing = missing
		r.recorder.RecordScore(ctx, trial.Name, score, missing)
		logger.Infof("Runner: trial '%s' scored %.4f (%s).", trial.Name, score, reportPath)
	}
	return results, nil
}
