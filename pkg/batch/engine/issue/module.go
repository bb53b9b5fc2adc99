package issue

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
)

// NewIssuerProvider builds the Issuer from the running settings.
func NewIssuerProvider(cfg *config.Config, placer port.Placer, classifier port.JobClassifier, recorder metrics.MetricRecorder) port.BatchIssuer {
	return NewIssuer(placer, classifier, NewCommandBuilder(cfg), cfg.OutputBaseDir(), cfg.Sweep.Running.DispatchConcurrency, recorder)
}

// Module provides port.BatchIssuer.
var Module = fx.Options(
	fx.Provide(NewIssuerProvider),
)
