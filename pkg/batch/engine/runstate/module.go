package runstate

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

// Module provides the classifier and the tree scanner.
var Module = fx.Options(
	fx.Provide(func(cfg *config.RunStateConfig) (*Classifier, error) { return NewClassifier(*cfg) }),
	fx.Provide(func(c *Classifier) port.JobClassifier { return c }),
	fx.Provide(func(c port.JobClassifier) port.TreeScanner { return NewScanner(c) }),
)
