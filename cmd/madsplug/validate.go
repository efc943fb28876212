package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the drivers it references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			h, err := newHost(cmd, opts, cfg)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDrivers(h.registry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pipelines, %d stages, configuration is valid\n",
				opts.ConfigPath, len(cfg.Pipelines), len(cfg.Stages()))
			return nil
		},
	}
}
