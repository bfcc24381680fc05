package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/kassa/internal/cli"
)

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <transaction-id>",
		Short: "Delete a transfer and reverse its balances",
		Long: `Delete a transaction leg together with its counterpart and restore
both category balances. Either leg of a transfer may be given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !yes {
				leg, err := a.store.GetTransaction(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s → %s  %s  %s\n", leg.FromUser, leg.ToUser,
					a.codec.Format(leg.Amount.Abs()), leg.Description)

				ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(os.Stdin), out, "Delete this transfer?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, cli.FormatInfo("Cancelled"))
					return nil
				}
			}

			result, err := a.ledger.DeleteTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.DeleteSummary(result))
			if !result.CounterpartFound {
				fmt.Fprintln(out, cli.FormatWarning("Counterpart leg was missing; only one balance was reversed"))
			}
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
