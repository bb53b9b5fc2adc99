package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
)

// CompositeMetricRecorder forwards every record to each of its recorders in order.
type CompositeMetricRecorder struct {
	recorders []metrics.MetricRecorder
}

// NewCompositeMetricRecorder creates a CompositeMetricRecorder, skipping nil recorders.
func NewCompositeMetricRecorder(recorders ...metrics.MetricRecorder) *CompositeMetricRecorder {
	c := &CompositeMetricRecorder{}
	for _, r := range recorders {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
	return c
}

func (c *CompositeMetricRecorder) RecordProbe(ctx context.Context, host string, duration time.Duration, err error) {
	for _, r := range c.recorders {
		r.RecordProbe(ctx, host, duration, err)
	}
}

func (c *CompositeMetricRecorder) RecordPlacement(ctx context.Context, host string, wait time.Duration, sweeps int) {
	for _, r := range c.recorders {
		r.RecordPlacement(ctx, host, wait, sweeps)
	}
}

func (c *CompositeMetricRecorder) RecordIssue(ctx context.Context, report model.IssueReport) {
	for _, r := range c.recorders {
		r.RecordIssue(ctx, report)
	}
}

func (c *CompositeMetricRecorder) RecordProgress(ctx context.Context, trialName string, summary model.RunSummary) {
	for _, r := range c.recorders {
		r.RecordProgress(ctx, trialName, summary)
	}
}

func (c *CompositeMetricRecorder) RecordScore(ctx context.Context, trialName string, score float64, missing bool) {
	for _, r := range c.recorders {
		r.RecordScore(ctx, trialName, score, missing)
	}
}

func (c *CompositeMetricRecorder) RecordObservation(ctx context.Context, study string, observation model.Observation, best float64) {
	for _, r := range c.recorders {
		r.RecordObservation(ctx, study, observation, best)
	}
}

func (c *CompositeMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ metrics.MetricRecorder = (*CompositeMetricRecorder)(nil)
