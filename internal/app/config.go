package app

import (
	"github.com/spf13/cobra"

	serialization "github.com/tigerroll/simsweep/pkg/batch/support/util/serialization"
)

// NewConfigCommand groups the configuration commands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigPrintCommand(rootOpts))
	return cmd
}

func newConfigPrintCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format   string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the configuration after defaults, .env and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if validate {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			data, err := serialization.MarshalConfig(cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml|json)")
	cmd.Flags().BoolVar(&validate, "validate", false, "fail when the configuration is invalid")
	return cmd
}
