package remote

import (
	"context"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
)

// Router sends commands for loopback hosts to the local executor and everything else over SSH.
type Router struct {
	local  port.RemoteExecutor
	remote port.RemoteExecutor
}

// NewRouter creates a Router.
func NewRouter(local, remote port.RemoteExecutor) *Router {
	return &Router{local: local, remote: remote}
}

// IsLocalHost reports whether host names this machine.
func IsLocalHost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (r *Router) pick(host string) port.RemoteExecutor {
	if IsLocalHost(host) {
		return r.local
	}
	return r.remote
}

// Run executes cmd on host.
func (r *Router) Run(ctx context.Context, host, cmd string) ([]byte, error) {
	return r.pick(host).Run(ctx, host, cmd)
}

// Start launches cmd on host.
func (r *Router) Start(ctx context.Context, host, cmd string) error {
	return r.pick(host).Start(ctx, host, cmd)
}

var _ port.RemoteExecutor = (*Router)(nil)
