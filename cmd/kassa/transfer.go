package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/kassa/internal/cli"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/ledger"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount> <description...>",
		Short: "Move money from one category to another",
		Long: `Debit the source category, credit the target and record both legs
as a linked pair. The amount accepts plain numbers or formatted balances
such as "1 000 ₸".`,
		Example: `  kassa transfer cash rent 50000 Rent for March
  kassa transfer cash ivan 120000 Salary --salary
  kassa transfer cash warehouse 7500 Delivery --waybill-number WB-17`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := buildTransferRequest(a.codec, args, cmd.Flags())
			if err != nil {
				return err
			}

			pair, err := a.ledger.Transfer(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.PairSummary(pair, a.codec))
			return nil
		},
	}

	cmd.Flags().Bool("salary", false, "Mark the transfer as a salary payment")
	cmd.Flags().Bool("cashless", false, "Mark the transfer as cashless")
	cmd.Flags().String("waybill-number", "", "Attach a waybill number to both legs")
	cmd.Flags().String("waybill-data", "", "Waybill payload as JSON")

	return cmd
}

// buildTransferRequest turns command arguments into a request. Flags are only
// set when passed explicitly so an unset flag is not stored at all.
func buildTransferRequest(codec *money.Codec, args []string, flags *pflag.FlagSet) (ledger.TransferRequest, error) {
	amount, err := parseAmount(codec, args[2])
	if err != nil {
		return ledger.TransferRequest{}, err
	}

	req := ledger.TransferRequest{
		SourceID:    args[0],
		TargetID:    args[1],
		Amount:      amount,
		Description: strings.Join(args[3:], " "),
	}

	if flags.Changed("salary") {
		v, _ := flags.GetBool("salary")
		req.Flags.IsSalary = &v
	}
	if flags.Changed("cashless") {
		v, _ := flags.GetBool("cashless")
		req.Flags.IsCashless = &v
	}

	number, _ := flags.GetString("waybill-number")
	data, _ := flags.GetString("waybill-data")
	if number != "" || data != "" {
		waybill := &model.Waybill{Number: number}
		if data != "" {
			if !json.Valid([]byte(data)) {
				return ledger.TransferRequest{}, common.NewValidationError("waybill-data", "must be valid JSON")
			}
			waybill.Data = json.RawMessage(data)
		}
		req.Waybill = waybill
	}

	return req, nil
}
