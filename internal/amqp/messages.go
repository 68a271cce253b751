package amqp

import (
	"encoding/json"
	"time"
)

// Lifecycle operations announced on the event feed.
const (
	OperationCreate = "create"
	OperationEdit   = "edit"
	OperationReview = "review"
	OperationDelete = "delete"
)

// ExpenseEventMessage announces one expense lifecycle mutation. It carries
// identifiers and outcome detail, not the record itself; the audit worker
// stores it as-is.
type ExpenseEventMessage struct {
	ExpenseID string    `json:"expense_id"`
	VentureID string    `json:"venture_id"`
	Operation string    `json:"operation"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(expenseID, ventureID, operation, actor, detail string) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		ExpenseID: expenseID,
		VentureID: ventureID,
		Operation: operation,
		Actor:     actor,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
