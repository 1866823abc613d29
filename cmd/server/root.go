package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global CLI flags.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "compliance-engine",
		Short:         "Vehicle compliance lifecycle and payment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./compliance.toml if present)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}
