package remote

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

// NewSSHExecutorProvider creates the SSH executor and closes its connections on shutdown.
func NewSSHExecutorProvider(lc fx.Lifecycle, cfg *config.Config) *SSHExecutor {
	e := NewSSHExecutor(cfg.Sweep.SSH)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return e.Close()
		},
	})
	return e
}

// NewRouterProvider routes between the local and SSH executors.
func NewRouterProvider(local *LocalExecutor, ssh *SSHExecutor) port.RemoteExecutor {
	return NewRouter(local, ssh)
}

// Module provides the local executor, the SSH executor and a port.RemoteExecutor routing between them.
var Module = fx.Options(
	fx.Provide(NewLocalExecutor),
	fx.Provide(NewSSHExecutorProvider),
	fx.Provide(NewRouterProvider),
)
