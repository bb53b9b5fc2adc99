package dispatch

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	retry "github.com/tigerroll/simsweep/pkg/batch/engine/retry"
)

// DispatcherParams holds the dependencies injected via DI.
type DispatcherParams struct {
	fx.In
	Config   *config.Config
	Prober   port.NodeProber
	Exec     port.RemoteExecutor
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewDispatcherProvider builds a Dispatcher with a process-wide Arbiter.
func NewDispatcherProvider(p DispatcherParams) port.Placer {
	dc := p.Config.Sweep.Dispatch
	return NewDispatcher(
		p.Prober,
		p.Exec,
		NewArbiter(dc.LeaseTTL()),
		retry.NewSweepPolicy(dc.Retry),
		dc.MaxWait(),
		p.Recorder,
		p.Tracer,
	)
}

// Module provides port.Placer.
var Module = fx.Options(
	fx.Provide(NewDispatcherProvider),
)
