// Package monitor polls trial output trees until every job reached a terminal state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Monitor implements port.ProgressMonitor.
type Monitor struct {
	scanner  port.TreeScanner
	recorder metrics.MetricRecorder
	now      func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(scanner port.TreeScanner, recorder metrics.MetricRecorder) *Monitor {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Monitor{scanner: scanner, recorder: recorder, now: time.Now}
}

// AwaitAll scans the named trials under baseDir every pollInterval until each of them is
// finished, and returns the names in input order. Cancellation returns ctx's error.
func (m *Monitor) AwaitAll(ctx context.Context, trialNames []string, baseDir string, pollInterval time.Duration) ([]string, error) {
	progress := newTracker(trialNames)
	if len(progress.order) == 0 {
		return nil, nil
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	logger.Infof("Monitor: waiting for %d trials under %s (poll interval %s).", len(progress.order), baseDir, pollInterval)

	pollCount := 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		pollCount++
		logger.Debugf("Monitor: sweep #%d.", pollCount)
		m.sweep(ctx, progress, baseDir)
		if progress.allFinished() {
			logger.Infof("Monitor: all %d trials finished after %d sweeps.", len(progress.order), pollCount)
			return progress.finishedNames(), nil
		}

		select {
		case <-ctx.Done():
			logger.Warnf("Monitor: waiting interrupted by context: %v", ctx.Err())
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Snapshot scans the named trials once.
func (m *Monitor) Snapshot(ctx context.Context, trialNames []string, baseDir string) []model.TrialProgress {
	progress := newTracker(trialNames)
	m.sweep(ctx, progress, baseDir)
	return progress.list()
}

// sweep scans every unfinished trial concurrently. Scan errors are logged and retried next sweep.
func (m *Monitor) sweep(ctx context.Context, progress *tracker, baseDir string) {
	var g errgroup.Group
	var mu sync.Mutex
	var errs []error

	for _, name := range progress.unfinished() {
		g.Go(func() error {
			summary, err := m.scanner.ScanTree(filepath.Join(baseDir, name))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("scan %s: %w", name, err))
				mu.Unlock()
				return nil
			}
			p := progress.update(name, summary, m.now())
			m.recorder.RecordProgress(ctx, name, summary)
			logProgress(p)
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		logger.Warnf("Monitor: %v", err)
	}
}

func logProgress(p model.TrialProgress) {
	s := p.Summary
	state := "running"
	if p.Finished {
		state = "finished"
	}
	logger.Infof("Monitor: [%s] %s: complete %d/%d, error %d, running %d.", p.Name, state, s.Complete, s.Total, s.Error, s.Running())
}

// tracker keeps one counter per trial.
type tracker struct {
	mu     sync.Mutex
	order  []string
	trials map[string]*model.TrialProgress
}

func newTracker(names []string) *tracker {
	t := &tracker{trials: make(map[string]*model.TrialProgress)}
	for _, n := range names {
		if _, dup := t.trials[n]; dup {
			continue
		}
		t.order = append(t.order, n)
		t.trials[n] = &model.TrialProgress{Name: n}
	}
	return t
}

func (t *tracker) update(name string, summary model.RunSummary, at time.Time) model.TrialProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.trials[name]
	p.Summary = summary
	p.Finished = summary.Finished()
	p.UpdatedAt = at
	return *p
}

func (t *tracker) unfinished() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, n := range t.order {
		if !t.trials[n].Finished {
			out = append(out, n)
		}
	}
	return out
}

func (t *tracker) allFinished() bool {
	return len(t.unfinished()) == 0
}

func (t *tracker) finishedNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, n := range t.order {
		if t.trials[n].Finished {
			out = append(out, n)
		}
	}
	return out
}

func (t *tracker) list() []model.TrialProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.TrialProgress, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, *t.trials[n])
	}
	return out
}

var _ port.ProgressMonitor = (*Monitor)(nil)
