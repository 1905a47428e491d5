package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus tracks delivery of an outbox message to the broker.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxProcessed  OutboxStatus = "PROCESSED"
	OutboxFailed     OutboxStatus = "FAILED"
)

// Outbox message types.
const (
	OutboxTransactionRecorded = "ledger.transaction.recorded" // A ledger entry was committed
	OutboxTransactionUpdated  = "ledger.transaction.updated"  // A pending entry reached a terminal status
)

// MaxOutboxAttempts is the number of failed deliveries after which a message
// is parked as FAILED.
const MaxOutboxAttempts = 5

// OutboxMessage is written in the same atomic context as the change it announces.
type OutboxMessage struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Payload     string       `json:"payload"`
	Status      OutboxStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
}

// NewOutboxMessage serializes payload as JSON into a pending message.
func NewOutboxMessage(eventType string, payload any) (*OutboxMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   string(b),
		Status:    OutboxPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
