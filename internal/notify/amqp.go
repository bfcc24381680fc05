package notify

import (
	"context"
	"fmt"

	"github.com/Veraticus/kassa/internal/amqp"
	"github.com/Veraticus/kassa/internal/money"
)

// TransferPublisher is implemented by *amqp.Client.
type TransferPublisher interface {
	PublishTransfer(ctx context.Context, msg *amqp.TransferMessage) error
}

// AMQPNotifier publishes transfer messages to a RabbitMQ exchange.
type AMQPNotifier struct {
	publisher TransferPublisher
	codec     *money.Codec
}

// NewAMQPNotifier creates an AMQPNotifier.
func NewAMQPNotifier(publisher TransferPublisher, codec *money.Codec) *AMQPNotifier {
	if codec == nil {
		codec = money.Default
	}
	return &AMQPNotifier{publisher: publisher, codec: codec}
}

// Notify publishes msg.
func (n *AMQPNotifier) Notify(ctx context.Context, msg Message) error {
	err := n.publisher.PublishTransfer(ctx, &amqp.TransferMessage{
		Timestamp:   msg.At,
		PairID:      msg.PairID,
		From:        msg.From,
		To:          msg.To,
		Amount:      n.codec.Format(msg.Amount.Abs()),
		Description: msg.Description,
		Direction:   string(msg.Direction),
		Text:        msg.Text(n.codec),
	})
	if err != nil {
		return fmt.Errorf("notify transfer %s: %w", msg.PairID, err)
	}
	return nil
}
