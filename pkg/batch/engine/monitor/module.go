package monitor

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
)

// Module provides *Monitor and port.ProgressMonitor.
var Module = fx.Options(
	fx.Provide(NewMonitor),
	fx.Provide(func(m *Monitor) port.ProgressMonitor { return m }),
)
