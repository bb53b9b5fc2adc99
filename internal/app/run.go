package app

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	checkpoint "github.com/tigerroll/simsweep/pkg/batch/component/checkpoint"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	issue "github.com/tigerroll/simsweep/pkg/batch/engine/issue"
	monitor "github.com/tigerroll/simsweep/pkg/batch/engine/monitor"
	optimize "github.com/tigerroll/simsweep/pkg/batch/engine/optimize"
	runner "github.com/tigerroll/simsweep/pkg/batch/engine/runner"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var archs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Issue, monitor and score every configured architecture",
		Long: `Run expands each entry of "archs" into one job per selected checkpoint,
places the jobs on the configured servers, waits until every job finished and
scores each architecture.

Example:
  simsweep run -c sweep.yaml
  simsweep run -c sweep.yaml --arch baseline --arch big-rob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if err := cfg.ValidateForDispatch(); err != nil {
				return err
			}

			var trials []model.Trial
			for _, arch := range cfg.Sweep.Archs {
				if len(archs) > 0 && !contains(archs, arch.Name) {
					continue
				}
				trials = append(trials, issue.TrialFromArch(cfg, arch))
			}
			if len(trials) == 0 {
				return fmt.Errorf("no architecture selected; configured: %s", strings.Join(archNames(cfg.Sweep.Archs), ", "))
			}

			var (
				r          *runner.Runner
				discoverer *checkpoint.Discoverer
			)
			stop, err := startApp(cmd.Context(), cfg, trialModules, &r, &discoverer)
			if err != nil {
				return err
			}
			defer stop()

			workloads, err := discoverer.DiscoverAll(cfg.Sweep.Workloads.WorkloadList)
			if err != nil {
				return err
			}
			results, err := r.Run(cmd.Context(), trials, workloads)
			printResults(cmd, results)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&archs, "arch", nil, "run only the named archs (repeatable)")
	return cmd
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search the parameter space, resuming from the stored history",
		Long: `Optimize proposes configurations from optimization.param_space, runs each one as
a trial and records the negated score. The history is saved after every evaluation;
running the command again resumes the study until optimization.n_calls is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if err := cfg.ValidateForDispatch(); err != nil {
				return err
			}

			var (
				loop       *optimize.Loop
				discoverer *checkpoint.Discoverer
			)
			stop, err := startApp(cmd.Context(), cfg, optimizeModules, &loop, &discoverer)
			if err != nil {
				return err
			}
			defer stop()

			workloads, err := discoverer.DiscoverAll(cfg.Sweep.Workloads.WorkloadList)
			if err != nil {
				return err
			}
			result, err := loop.Run(cmd.Context(), workloads)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "study:     %s\n", result.Record.Study)
			fmt.Fprintf(out, "evaluated: %d (history %d)\n", result.Evaluated, result.Record.Len())
			if result.Record.Len() > 0 {
				fmt.Fprintf(out, "best:      %s score=%g point=%v\n", result.Best.TrialName, -result.Best.Score, result.Best.Point)
			}
			return nil
		},
	}
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		trials     []string
		showErrors bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the job states of trials under the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if err := cfg.Validate(); err != nil {
				return err
			}
			baseDir := cfg.OutputBaseDir()

			names := trials
			if len(names) == 0 {
				found, err := trialDirs(baseDir)
				if err != nil {
					return err
				}
				names = found
			}
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no trials under %s\n", baseDir)
				return nil
			}

			var m *monitor.Monitor
			stop, err := startApp(cmd.Context(), cfg, trialModules, &m)
			if err != nil {
				return err
			}
			defer stop()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TRIAL\tCOMPLETE\tERROR\tRUNNING\tTOTAL\tFINISHED")
			snapshot := m.Snapshot(cmd.Context(), names, baseDir)
			for _, p := range snapshot {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%t\n", p.Name, p.Summary.Complete, p.Summary.Error, p.Summary.Running(), p.Summary.Total, p.Finished)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if showErrors {
				for _, p := range snapshot {
					for _, path := range p.Summary.ErrorPaths {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.Name, path)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&trials, "trial", nil, "trial names to scan (default: every directory under the output base)")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "list the directories of failed jobs")
	return cmd
}

func printResults(cmd *cobra.Command, results []runner.TrialResult) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tJOBS\tDISPATCHED\tSKIPPED\tFAILED\tSCORE\tREPORT")
	for _, r := range results {
		scoreText := fmt.Sprintf("%g", r.Score)
		if r.ScoreMissing {
			scoreText = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n", r.Trial.Name, r.Issue.Total, r.Issue.Dispatched, r.Issue.Skipped, len(r.Issue.Failed), scoreText, r.ReportPath)
	}
	if err := tw.Flush(); err != nil {
		logger.Warnf("Failed to print results: %v", err)
	}
}

func trialDirs(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", baseDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func archNames(archs []config.ArchConfig) []string {
	names := make([]string, len(archs))
	for i, a := range archs {
		names[i] = a.Name
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
