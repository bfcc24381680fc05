package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/kassa/internal/amqp"
	"github.com/Veraticus/kassa/internal/cli"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/config"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print transfer notifications as they arrive",
		Long: `Consume transfer notifications from the configured AMQP queue and
print them until interrupted. Notifications from every kassa process that
publishes to the same exchange are shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if !cfg.AMQP.Enabled() {
				return common.NewUserError("AMQP is not configured; set amqp.url or AMQP_URL", common.ErrMissingConfig)
			}

			client, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
			if err != nil {
				return fmt.Errorf("failed to connect to AMQP: %w", err)
			}
			defer func() { _ = client.Close() }()

			out := cmd.OutOrStdout()
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Stopping watch...")
			ctx, stop := handler.HandleInterrupts(cmd.Context())
			defer stop()

			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Watching %s for transfers (Ctrl+C to stop)", cfg.AMQP.Queue)))

			err = client.ConsumeTransfers(ctx, printTransfer(out))
			if errors.Is(err, context.Canceled) && (handler.WasInterrupted() || cmd.Context().Err() != nil) {
				return nil
			}
			return err
		},
	}
}

// printTransfer renders each message using the text the publisher attached.
func printTransfer(out io.Writer) func(*amqp.TransferMessage) error {
	return func(msg *amqp.TransferMessage) error {
		text := msg.Text
		if text == "" {
			text = fmt.Sprintf("%s → %s  %s  %s", msg.From, msg.To, msg.Amount, msg.Description)
		}
		_, err := fmt.Fprintln(out, cli.RenderBox(msg.Timestamp.Local().Format("02.01.2006 15:04"), text))
		return err
	}
}
