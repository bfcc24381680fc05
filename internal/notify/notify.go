// Package notify delivers best-effort messages about committed transfers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
)

// Message describes a committed transfer.
type Message struct {
	At          time.Time
	PairID      string
	From        string
	To          string
	Description string
	Direction   model.TransactionType
	Amount      decimal.Decimal
}

// NewTransferMessage builds the message for a committed pair.
func NewTransferMessage(pair *model.Pair) Message {
	return Message{
		At:          pair.Expense.Date,
		PairID:      pair.ID(),
		From:        pair.Expense.FromUser,
		To:          pair.Expense.ToUser,
		Description: pair.Expense.Description,
		Direction:   model.TypeExpense,
		Amount:      pair.Income.Amount,
	}
}

// Text renders the human readable form of m.
func (m Message) Text(codec *money.Codec) string {
	if codec == nil {
		codec = money.Default
	}

	var b strings.Builder
	switch m.Direction {
	case model.TypeIncome:
		b.WriteString("💰 Поступление\n")
	default:
		b.WriteString("💸 Перевод\n")
	}
	fmt.Fprintf(&b, "От: %s\n", m.From)
	fmt.Fprintf(&b, "Кому: %s\n", m.To)
	fmt.Fprintf(&b, "Сумма: %s\n", codec.Format(m.Amount.Abs()))
	fmt.Fprintf(&b, "Описание: %s", m.Description)
	return b.String()
}

// Notifier delivers messages. Implementations must honor ctx.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Nop discards every message.
var Nop Notifier = NotifierFunc(func(context.Context, Message) error { return nil })

// LogNotifier writes messages to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
	codec  *money.Codec
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger, codec *money.Codec) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = money.Default
	}
	return &LogNotifier{logger: logger, codec: codec}
}

// Notify logs msg at info level.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "Transfer notification",
		"pair_id", msg.PairID,
		"from", msg.From,
		"to", msg.To,
		"amount", n.codec.Format(msg.Amount.Abs()),
		"description", msg.Description)
	return nil
}

// Multi fans a message out to every notifier concurrently and returns the
// first error once all have finished. A failing notifier does not cancel the
// others.
type Multi []Notifier

// Notify delivers msg to each notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var g errgroup.Group
	for _, n := range m {
		if n == nil {
			continue
		}
		g.Go(func() error {
			return n.Notify(ctx, msg)
		})
	}
	return g.Wait()
}
