package amqp

import (
	"encoding/json"
	"time"
)

// TransferMessage describes a committed transfer.
type TransferMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	PairID      string    `json:"pair_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Direction   string    `json:"direction"`
	Text        string    `json:"text"`
}

// ToJSON converts the message to JSON bytes.
func (m *TransferMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransferMessageFromJSON creates a message from JSON bytes.
func TransferMessageFromJSON(data []byte) (*TransferMessage, error) {
	var msg TransferMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
