// Package dispatch places jobs on compute nodes that admit them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	retry "github.com/tigerroll/simsweep/pkg/batch/engine/retry"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// errNoAdmission ends a sweep in which no node admitted the job.
var errNoAdmission = errors.New("no node admitted the job")

// Dispatcher implements port.Placer. Each sweep walks the nodes in order and starts the job on the
// first one that is not leased and admits it; between sweeps it waits according to the retry policy.
type Dispatcher struct {
	prober   port.NodeProber
	exec     port.RemoteExecutor
	arbiter  *Arbiter
	policy   retry.RetryPolicy
	maxWait  time.Duration
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. maxWait of zero retries until ctx is done.
func NewDispatcher(
	prober port.NodeProber,
	exec port.RemoteExecutor,
	arbiter *Arbiter,
	policy retry.RetryPolicy,
	maxWait time.Duration,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Dispatcher{
		prober:   prober,
		exec:     exec,
		arbiter:  arbiter,
		policy:   policy,
		maxWait:  maxWait,
		recorder: recorder,
		tracer:   tracer,
		now:      time.Now,
	}
}

// Place blocks until command was started on an admitting node and returns that node.
// It fails with ctx's error on cancellation, with the node error when the retry policy gives up on it,
// or with *exception.DispatchExhausted once maxWait elapsed.
func (d *Dispatcher) Place(ctx context.Context, job model.Job, command string, nodes []string, maxPerNode int) (string, error) {
	if len(nodes) == 0 {
		return "", exception.NewBatchErrorf("dispatch", "no nodes configured for job %s", job.Fingerprint())
	}

	ctx, end := d.tracer.StartJobSpan(ctx, job)
	defer end()

	start := d.now()
	sweeps := 0
	operation := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}
		sweeps++
		host, ok, err := d.sweep(ctx, command, nodes, maxPerNode)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if !ok {
			return "", errNoAdmission
		}
		return host, nil
	}

	maxElapsed := d.maxWait
	if maxElapsed <= 0 {
		maxElapsed = time.Duration(math.MaxInt64)
	}
	host, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(d.policy.NewBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debugf("Dispatcher: job %s not placed after sweep %d, retrying in %s.", job.Fingerprint(), sweeps, next)
		}),
	)
	waited := d.now().Sub(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !errors.Is(err, errNoAdmission) {
			d.tracer.RecordError(ctx, "dispatch", err)
			return "", fmt.Errorf("place job %s: %w", job.Fingerprint(), err)
		}
		exhausted := &exception.DispatchExhausted{Fingerprint: job.Fingerprint(), Sweeps: sweeps, Waited: waited, Err: err}
		d.tracer.RecordError(ctx, "dispatch", exhausted)
		return "", exhausted
	}

	d.recorder.RecordPlacement(ctx, host, waited, sweeps)
	d.tracer.RecordEvent(ctx, "placed", map[string]interface{}{"host": host, "sweeps": sweeps})
	logger.Infof("Dispatcher: job %s started on %s (sweep %d).", job.Fingerprint(), host, sweeps)
	return host, nil
}

// sweep tries every node once. An error is a node failure the retry policy refuses to retry.
func (d *Dispatcher) sweep(ctx context.Context, command string, nodes []string, maxPerNode int) (string, bool, error) {
	for _, host := range nodes {
		if ctx.Err() != nil {
			return "", false, nil
		}
		lease, ok := d.arbiter.TryAcquire(host)
		if !ok {
			logger.Debugf("Dispatcher: %s is leased, skipping.", host)
			continue
		}
		placed, err := d.tryNode(ctx, lease, command, maxPerNode)
		if placed {
			d.arbiter.Hold(lease)
			return host, true, nil
		}
		d.arbiter.Release(lease)
		if err != nil && !d.policy.ShouldRetry(err) {
			return "", false, err
		}
	}
	return "", false, nil
}

// tryNode probes the leased node and starts command when it admits. A non-nil error is the probe
// or start failure that kept the job off the node.
func (d *Dispatcher) tryNode(ctx context.Context, lease Lease, command string, maxPerNode int) (bool, error) {
	snap, err := d.prober.Probe(ctx, lease.Host)
	if err != nil {
		logger.Warnf("Dispatcher: %v", err)
		return false, err
	}
	if !snap.Admits(maxPerNode) {
		logger.Debugf("Dispatcher: %s does not admit (max %d).", snap, maxPerNode)
		return false, nil
	}
	if err := d.exec.Start(ctx, lease.Host, command); err != nil {
		err = fmt.Errorf("start on %s: %w", lease.Host, err)
		logger.Warnf("Dispatcher: %v", err)
		d.tracer.RecordError(ctx, "dispatch", err)
		return false, err
	}
	return true, nil
}

var _ port.Placer = (*Dispatcher)(nil)
