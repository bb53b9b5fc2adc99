package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	probe "github.com/tigerroll/simsweep/pkg/batch/infrastructure/probe"
)

// NewNodeCommand groups the node administration commands.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect or clean up the compute nodes",
	}
	cmd.AddCommand(newNodeCheckCommand(rootOpts))
	cmd.AddCommand(newNodeKillCommand(rootOpts))
	return cmd
}

func newNodeCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [host...]",
		Short: "Print the simulator process count and load of each server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			hosts := selectHosts(cfg.Sweep.Servers, args)
			if len(hosts) == 0 {
				return fmt.Errorf("no servers configured")
			}

			var p *probe.Prober
			stop, err := startApp(cmd.Context(), cfg, nodeModules, &p)
			if err != nil {
				return err
			}
			defer stop()

			statuses := make([]model.NodeStatus, len(hosts))
			errs := make([]error, len(hosts))
			forEachHost(cmd.Context(), hosts, func(ctx context.Context, i int, host string) {
				statuses[i], errs[i] = p.Status(ctx, host)
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tRUNNING\tLOAD1\tLOAD5\tLOAD15\tCORES\tACCEPTING")
			for i, host := range hosts {
				if errs[i] != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%v\n", host, errs[i])
					continue
				}
				s := statuses[i]
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%d\t%t\n", s.Host, s.RunningCount, s.Load1, s.Load5, s.Load15, s.CoreCount, s.Accepting())
			}
			return tw.Flush()
		},
	}
}

func newNodeKillCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "kill [host...]",
		Short: "Kill the current user's simulator processes on each server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to kill without --yes")
			}
			cfg := rootOpts.Config()
			hosts := selectHosts(cfg.Sweep.Servers, args)
			if len(hosts) == 0 {
				return fmt.Errorf("no servers configured")
			}

			var p *probe.Prober
			stop, err := startApp(cmd.Context(), cfg, nodeModules, &p)
			if err != nil {
				return err
			}
			defer stop()

			results := make([]probe.KillResult, len(hosts))
			errs := make([]error, len(hosts))
			forEachHost(cmd.Context(), hosts, func(ctx context.Context, i int, host string) {
				results[i], errs[i] = p.Kill(ctx, host)
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tKILLED\tREMAINING")
			failed := 0
			for i, host := range hosts {
				if errs[i] != nil {
					failed++
					fmt.Fprintf(tw, "%s\t-\t%v\n", host, errs[i])
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\n", host, results[i].Killed, results[i].Remaining)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("kill failed on %d of %d servers", failed, len(hosts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm killing the processes")
	return cmd
}

// selectHosts returns args when given, otherwise the configured servers.
func selectHosts(servers, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return servers
}

// forEachHost runs fn for every host concurrently. fn records its own errors.
func forEachHost(ctx context.Context, hosts []string, fn func(ctx context.Context, i int, host string)) {
	g, gctx := errgroup.WithContext(ctx)
	for i, host := range hosts {
		g.Go(func() error {
			fn(gctx, i, host)
			return nil
		})
	}
	g.Wait()
}
