package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// MetricRecorder records sweep metrics independently of the backend.
type MetricRecorder interface {
	// RecordProbe records one node probe and its outcome.
	RecordProbe(ctx context.Context, host string, duration time.Duration, err error)

	// RecordPlacement records a job placed on host after waiting for sweeps rescans.
	RecordPlacement(ctx context.Context, host string, wait time.Duration, sweeps int)

	// RecordIssue records the outcome of issuing one trial.
	RecordIssue(ctx context.Context, report model.IssueReport)

	// RecordProgress records the latest scan of a trial's output tree.
	RecordProgress(ctx context.Context, trialName string, summary model.RunSummary)

	// RecordScore records the score extracted for a trial. missing marks a sentinel score.
	RecordScore(ctx context.Context, trialName string, score float64, missing bool)

	// RecordObservation records an optimizer observation and the best score so far.
	RecordObservation(ctx context.Context, study string, observation model.Observation, best float64)

	// RecordDuration records the execution time of a named operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
