package score

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	remote "github.com/tigerroll/simsweep/pkg/batch/infrastructure/remote"
)

// NewScorerProvider builds the Scorer on the local executor.
func NewScorerProvider(cfg *config.Config, local *remote.LocalExecutor) (port.TrialScorer, error) {
	return NewScorer(cfg, local)
}

// Module provides port.TrialScorer.
var Module = fx.Options(
	fx.Provide(NewScorerProvider),
)
