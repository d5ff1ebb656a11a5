package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// NewTotalsCommand creates the totals command.
func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "totals",
		Short:        "Print the financial summary of the ledger as JSON",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return writeJSON(cmd.OutOrStdout(), a.register.Totals(cmd.Context()))
		},
	}
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "pending",
		Short:        "List pending cheque payments by due date",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return writeJSON(cmd.OutOrStdout(), a.register.PendingPayments(cmd.Context()))
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
