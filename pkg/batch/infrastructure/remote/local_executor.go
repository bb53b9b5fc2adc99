package remote

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// ExecCommandFunc builds the command to run. exec.CommandContext in production.
type ExecCommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// LocalExecutor runs commands through the local shell. It serves "localhost" nodes and the scoring step.
type LocalExecutor struct {
	execCommand ExecCommandFunc
	shell       string
}

// NewLocalExecutor creates a LocalExecutor using /bin/sh.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{execCommand: exec.CommandContext, shell: "/bin/sh"}
}

// Set replaces the command factory.
func (e *LocalExecutor) Set(execCommand ExecCommandFunc) *LocalExecutor {
	e.execCommand = execCommand
	return e
}

// Run executes cmd with "sh -c" and returns its combined output. The host is ignored.
func (e *LocalExecutor) Run(ctx context.Context, host, cmd string) ([]byte, error) {
	c := e.execCommand(ctx, e.shell, "-c", cmd)
	// Background children may hold the output pipe open after a cancel.
	c.WaitDelay = time.Second
	out, err := c.CombinedOutput()
	logger.Debugf("LocalExecutor: %s", c.String())
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("local command failed: %w", err)
	}
	return out, nil
}

// Start runs cmd and waits for the shell to exit; cmd is expected to background the real work.
func (e *LocalExecutor) Start(ctx context.Context, host, cmd string) error {
	out, err := e.Run(ctx, host, cmd)
	if err != nil {
		logger.Errorf("LocalExecutor: unable to start command: %v, output: %s", err, string(out))
		return err
	}
	return nil
}

var _ port.RemoteExecutor = (*LocalExecutor)(nil)
