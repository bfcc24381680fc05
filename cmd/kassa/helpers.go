package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/kassa/internal/amqp"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/config"
	"github.com/Veraticus/kassa/internal/ledger"
	"github.com/Veraticus/kassa/internal/money"
	"github.com/Veraticus/kassa/internal/notify"
	"github.com/Veraticus/kassa/internal/storage"
)

// app bundles what most commands need.
type app struct {
	cfg    *config.Config
	codec  *money.Codec
	store  *storage.SQLiteStorage
	ledger *ledger.Ledger
	broker *amqp.Client
}

// openApp loads configuration and opens the migrated store. withLedger also
// wires the engines and their notifiers.
func openApp(ctx context.Context, withLedger bool) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	codec, err := money.NewCodec(cfg.Currency.Locale, cfg.Currency.Symbol)
	if err != nil {
		return nil, fmt.Errorf("invalid currency settings: %w", err)
	}

	retry := storage.DefaultRetryOptions()
	retry.MaxAttempts = cfg.Store.MaxAttempts

	store, err := storage.NewSQLiteStorage(cfg.Database.Path,
		storage.WithCodec(codec),
		storage.WithRetry(retry))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, codec: codec, store: store}
	if !withLedger {
		return a, nil
	}

	notifiers := notify.Multi{notify.NewLogNotifier(slog.Default(), codec)}
	if cfg.AMQP.Enabled() {
		broker, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, "")
		if err != nil {
			// Notifications are best effort; the ledger works without a broker.
			slog.Warn("AMQP unavailable, notifications will only be logged", "error", err)
		} else {
			a.broker = broker
			notifiers = append(notifiers, notify.NewAMQPNotifier(broker, codec))
		}
	}

	a.ledger = ledger.New(store,
		ledger.WithNotifier(notifiers),
		ledger.WithNotifyTimeout(cfg.Notify.Timeout))
	return a, nil
}

// Close waits for pending notifications and releases resources.
func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Wait()
	}
	if a.broker != nil {
		_ = a.broker.Close()
	}
	_ = a.store.Close()
}

// parseAmount accepts plain numbers as well as formatted balances such as
// "1 000 ₸".
func parseAmount(codec *money.Codec, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, common.NewValidationError("amount", "is required")
	}
	d, err := codec.Parse(s)
	if err != nil {
		return decimal.Zero, common.NewValidationError("amount", fmt.Sprintf("%q is not a number", s))
	}
	return d, nil
}
