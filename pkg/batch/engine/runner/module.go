package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
)

// NewRunnerProvider builds the Runner from the running settings.
func NewRunnerProvider(cfg *config.Config, issuer port.BatchIssuer, monitor port.ProgressMonitor, scorer port.TrialScorer, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Runner {
	return NewRunner(issuer, monitor, scorer, SettingsFromConfig(cfg), recorder, tracer)
}

// Module provides *Runner.
var Module = fx.Options(
	fx.Provide(NewRunnerProvider),
)
