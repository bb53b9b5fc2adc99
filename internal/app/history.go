package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	export "github.com/tigerroll/simsweep/pkg/batch/component/export"
	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	optimize "github.com/tigerroll/simsweep/pkg/batch/engine/optimize"
)

// NewHistoryCommand groups the commands reading the optimization history.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var study string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Read the stored optimization history",
	}
	cmd.PersistentFlags().StringVar(&study, "study", "", "study name (default: optimization.name)")
	cmd.AddCommand(newHistoryListCommand(rootOpts, &study))
	cmd.AddCommand(newHistoryExportCommand(rootOpts, &study))
	return cmd
}

func newHistoryListCommand(rootOpts *RootOptions, study *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print observations, best score first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			record, err := loadHistory(cmd, cfg, *study)
			if err != nil {
				return err
			}
			return printRanked(cmd.OutOrStdout(), record, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n observations (0 prints all)")
	return cmd
}

func newHistoryExportCommand(rootOpts *RootOptions, study *string) *cobra.Command {
	var (
		format      string
		output      string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as YAML or parquet",
		Long: `Export writes every observation of the study with its domain score.

Example:
  simsweep history export --format yaml
  simsweep history export --format parquet -o history.parquet --compression gzip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			record, err := loadHistory(cmd, cfg, *study)
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case export.FormatYAML:
				if output == "" || output == "-" {
					return export.WriteYAML(cmd.OutOrStdout(), record)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				if err := export.WriteYAML(f, record); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			case export.FormatParquet:
				if output == "" || output == "-" {
					return fmt.Errorf("parquet export needs --output")
				}
				return export.WriteParquet(output, record, compression)
			default:
				return fmt.Errorf("unsupported export format %q (yaml|parquet)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", export.FormatYAML, "output format (yaml|parquet)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (yaml defaults to stdout)")
	cmd.Flags().StringVar(&compression, "compression", "SNAPPY", "parquet compression (SNAPPY|GZIP|NONE)")
	return cmd
}

func loadHistory(cmd *cobra.Command, cfg *config.Config, study string) (*model.OptimizationRecord, error) {
	if study == "" {
		study = cfg.Sweep.Optimization.Name
	}

	var repo port.HistoryRepository
	stop, err := startApp(cmd.Context(), cfg, historyModules, &repo)
	if err != nil {
		return nil, err
	}
	defer stop()

	record, err := repo.Load(cmd.Context(), study)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("study '%s' has no history", study)
	}
	return record, nil
}

// printRanked lists observations by |score| descending, which puts the best domain scores first.
func printRanked(w io.Writer, record *model.OptimizationRecord, limit int) error {
	ranked := record.RankedByMagnitude()
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	fmt.Fprintf(w, "study %s: %d observations\n", record.Study, record.Len())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tSCORE\tTRIAL\t%s\n", strings.ToUpper(strings.Join(record.Dimensions, "\t")))
	for i, o := range ranked {
		values := make([]string, len(o.Point))
		for j, v := range o.Point {
			values[j] = optimize.FormatValue(v)
		}
		fmt.Fprintf(tw, "%d\t%g\t%s\t%s\n", i+1, -o.Score, o.TrialName, strings.Join(values, "\t"))
	}
	return tw.Flush()
}
