package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string

	cfg *config.Config
}

// Config returns the configuration loaded by the root command.
func (o *RootOptions) Config() *config.Config {
	return o.cfg
}

// NewRootCommand creates the root command for the simsweep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "simsweep",
		Short: "Distribute simulation sweeps over compute nodes and optimize their configuration",
		Long: `simsweep runs simulator jobs (one per checkpoint and architecture configuration)
on a pool of compute nodes, waits for them, scores each configuration and feeds the
scores into a resumable Bayesian search over the configuration space.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "simsweep.yaml", "path to the sweep configuration")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override system.logging.level (DEBUG|INFO|WARN|ERROR)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewOptimizeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewNodeCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg, err := config.LoadConfig(o.ConfigPath, o.EnvFile)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Sweep.System.Logging.Level = o.LogLevel
		logger.SetLogLevel(o.LogLevel)
	}
	o.cfg = cfg
	return nil
}

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitFatal reports a configuration or persistence failure; rerunning without a fix fails again.
	ExitFatal = 2
)

// Execute runs the root command with ctx and returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	if exception.IsFatal(err) {
		return ExitFatal
	}
	return ExitFailure
}
