package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command of the pos_ledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pos_ledger",
		Short: "Cash register ledger with session tracking and guarded reset",
		// main prints the returned error.
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a JSON or YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTotalsCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))

	return cmd
}
