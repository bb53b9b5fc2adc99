package probe

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
)

// NewProberProvider builds the Prober from the dispatch settings.
func NewProberProvider(exec port.RemoteExecutor, cfg *config.Config, recorder metrics.MetricRecorder) *Prober {
	return NewProber(exec, cfg.ProcessName(), cfg.Sweep.Dispatch.ProbeTimeout(), recorder)
}

// Module provides *Prober and port.NodeProber.
var Module = fx.Options(
	fx.Provide(NewProberProvider),
	fx.Provide(func(p *Prober) port.NodeProber { return p }),
)
