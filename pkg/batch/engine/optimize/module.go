package optimize

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	runner "github.com/tigerroll/simsweep/pkg/batch/engine/runner"
)

// NewSpaceProvider decodes optimization.param_space.
func NewSpaceProvider(cfg *config.Config) (*Space, error) {
	return DecodeSpace(cfg.Sweep.Optimization.ParamSpace)
}

// NewLoopProvider builds the Loop on the shared Runner.
func NewLoopProvider(cfg *config.Config, space *Space, trials *runner.Runner, history port.HistoryRepository, recorder metrics.MetricRecorder) *Loop {
	return NewLoop(LoopConfigFromConfig(cfg), space, trials, history, recorder)
}

// Module provides *Space and *Loop.
var Module = fx.Options(
	fx.Provide(NewSpaceProvider),
	fx.Provide(NewLoopProvider),
)
