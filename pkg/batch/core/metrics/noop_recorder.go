package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing.
// It is used when no metrics endpoint is configured and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordProbe(ctx context.Context, host string, duration time.Duration, err error) {
}
func (r *NoOpMetricRecorder) RecordPlacement(ctx context.Context, host string, wait time.Duration, sweeps int) {
}
func (r *NoOpMetricRecorder) RecordIssue(ctx context.Context, report model.IssueReport) {}
func (r *NoOpMetricRecorder) RecordProgress(ctx context.Context, trialName string, summary model.RunSummary) {
}
func (r *NoOpMetricRecorder) RecordScore(ctx context.Context, trialName string, score float64, missing bool) {
}
func (r *NoOpMetricRecorder) RecordObservation(ctx context.Context, study string, observation model.Observation, best float64) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartTrialSpan(ctx context.Context, trialName string) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, job model.Job) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
