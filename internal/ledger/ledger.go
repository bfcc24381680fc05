// Package ledger implements the paired-ledger transfer and deletion engines.
//
// Every movement of money between two categories is stored as two legs: an
// expense leg on the source and an income leg on the target, sharing one pair
// ID. Category balances are read fresh inside a store transaction, updated
// together with the legs, and reversed together when a leg is deleted.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/kassa/internal/notify"
	"github.com/Veraticus/kassa/internal/service"
)

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 10 * time.Second

// Ledger runs transfers and deletions against a store.
type Ledger struct {
	store         service.Store
	notifier      notify.Notifier
	logger        *slog.Logger
	wg            sync.WaitGroup
	notifyTimeout time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNotifier sets where transfer notifications are sent.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Ledger) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithNotifyTimeout bounds each notification delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Ledger over store.
func New(store service.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:         store,
		notifier:      notify.Nop,
		logger:        slog.Default(),
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until every notification dispatched so far has finished.
func (l *Ledger) Wait() {
	l.wg.Wait()
}

// dispatch delivers msg in the background. Failures are logged only.
func (l *Ledger) dispatch(ctx context.Context, msg notify.Message) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTimeout)
		defer cancel()

		if err := l.notifier.Notify(ctx, msg); err != nil {
			l.logger.Warn("Failed to send transfer notification",
				"pair_id", msg.PairID,
				"error", err)
		}
	}()
}
