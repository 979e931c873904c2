package amqp

import (
	"encoding/json"
	"time"

	"finassist/internal/core"
)

// EventType names a ledger mutation.
type EventType string

const (
	EventUserRegistered     EventType = "user.registered"
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
)

// LedgerEvent is published after every successful mutation. Transaction is
// nil for user events; for deletes it carries the record as it was before
// removal.
type LedgerEvent struct {
	Type        EventType         `json:"type"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username,omitempty"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func NewUserEvent(u core.User) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventUserRegistered,
		UserID:    u.ID,
		Username:  u.Username,
		Timestamp: time.Now().UTC(),
	}
}

func NewTransactionEvent(t EventType, tx core.Transaction) *LedgerEvent {
	return &LedgerEvent{
		Type:        t,
		UserID:      tx.UserID,
		Transaction: &tx,
		Timestamp:   time.Now().UTC(),
	}
}

// TransactionID returns the id of the affected transaction, if any.
func (e *LedgerEvent) TransactionID() string {
	if e.Transaction == nil {
		return ""
	}
	return e.Transaction.ID
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
