// Package probe reads the live capacity of compute nodes.
package probe

import (
	"context"
	"time"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Prober implements port.NodeProber with one remote shell round trip per probe.
type Prober struct {
	exec        port.RemoteExecutor
	processName string
	timeout     time.Duration
	recorder    metrics.MetricRecorder
	now         func() time.Time
}

// NewProber creates a Prober counting processes named processName.
// A zero timeout leaves the probe bounded only by ctx.
func NewProber(exec port.RemoteExecutor, processName string, timeout time.Duration, recorder metrics.MetricRecorder) *Prober {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Prober{
		exec:        exec,
		processName: processName,
		timeout:     timeout,
		recorder:    recorder,
		now:         time.Now,
	}
}

func (p *Prober) read(ctx context.Context, host string) (probeOutput, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.exec.Run(ctx, host, probeCommand(p.processName))
	if err != nil {
		if ctx.Err() != nil {
			return probeOutput{}, exception.NewProbeFailure(host, "timed out", ctx.Err())
		}
		return probeOutput{}, exception.NewProbeFailure(host, "command failed", err)
	}
	parsed, err := parseProbeOutput(string(out))
	if err != nil {
		return probeOutput{}, exception.NewProbeFailure(host, "malformed output", err)
	}
	return parsed, nil
}

// Probe returns the node's snapshot or an *exception.ProbeFailure. It never retries.
func (p *Prober) Probe(ctx context.Context, host string) (model.NodeSnapshot, error) {
	start := p.now()
	parsed, err := p.read(ctx, host)
	p.recorder.RecordProbe(ctx, host, p.now().Sub(start), err)
	if err != nil {
		logger.Debugf("Prober: %v", err)
		return model.NodeSnapshot{}, err
	}
	return model.NodeSnapshot{
		Host:         host,
		RunningCount: parsed.running,
		LoadAverage:  parsed.load[0],
		CoreCount:    parsed.cores,
		ProbedAt:     start,
	}, nil
}

// Status returns the administrative view of a node.
func (p *Prober) Status(ctx context.Context, host string) (model.NodeStatus, error) {
	parsed, err := p.read(ctx, host)
	if err != nil {
		return model.NodeStatus{}, err
	}
	return model.NodeStatus{
		Host:         host,
		RunningCount: parsed.running,
		Load1:        parsed.load[0],
		Load5:        parsed.load[1],
		Load15:       parsed.load[2],
		CoreCount:    parsed.cores,
	}, nil
}

// KillResult is the outcome of killing the simulator processes on one node.
type KillResult struct {
	Host      string
	Killed    int
	Remaining int
}

// Kill signals every matching process of the current user on host.
func (p *Prober) Kill(ctx context.Context, host string) (KillResult, error) {
	out, err := p.exec.Run(ctx, host, killCommand(p.processName))
	if err != nil {
		return KillResult{}, exception.NewProbeFailure(host, "kill failed", err)
	}
	before, killed, err := parseKillOutput(string(out))
	if err != nil {
		return KillResult{}, exception.NewProbeFailure(host, "malformed output", err)
	}
	remaining := before - killed
	if remaining < 0 {
		remaining = 0
	}
	logger.Infof("Prober: on %s, %d killed, %d remain.", host, killed, remaining)
	return KillResult{Host: host, Killed: killed, Remaining: remaining}, nil
}

var _ port.NodeProber = (*Prober)(nil)
