package metrics

import (
	"context"

	"github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of trials and jobs.
type Tracer interface {
	// StartTrialSpan starts a span covering issue, monitor and score of one trial.
	// The returned function ends the span.
	StartTrialSpan(ctx context.Context, trialName string) (context.Context, func())

	// StartJobSpan starts a span covering the placement of one job.
	StartJobSpan(ctx context.Context, job model.Job) (context.Context, func())

	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
