package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseChangedMessage tells other instances that an owner's expenses changed.
// It carries no expense data; receivers re-run their live queries.
type ExpenseChangedMessage struct {
	OwnerID   string    `json:"ownerId"`
	ExpenseID string    `json:"expenseId"`
	Op        string    `json:"op"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseChangedMessage(ownerID, expenseID, op, origin string) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		OwnerID:   ownerID,
		ExpenseID: expenseID,
		Op:        op,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
