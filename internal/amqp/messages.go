package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds carried on the ledger event queue.
const (
	KindLedgerEvent = "ledger_event"
	KindDriftAlert  = "drift_alert"
)

// Entity and operation names used in ledger events.
const (
	EntityTransaction = "transaction"
	EntityTransfer    = "transfer"

	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// LedgerEvent announces a committed mutation of a ledger entry. Created
// and updated events carry only identifiers; consumers fetch the current
// row from storage. Deleted events carry the removed entry inline because
// the row is gone by the time the consumer sees the message.
type LedgerEvent struct {
	Entity    string        `json:"entity"`
	Op        string        `json:"op"`
	EntityID  string        `json:"entity_id"`
	OwnerID   string        `json:"owner_id"`
	Removed   *RemovedEntry `json:"removed,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// RemovedEntry is the exportable remainder of a deleted ledger entry.
type RemovedEntry struct {
	Account     string `json:"account,omitempty"`
	FromAccount string `json:"from_account,omitempty"`
	ToAccount   string `json:"to_account,omitempty"`
	Category    string `json:"category,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// DriftAlert reports a balance reversal that was skipped because the
// prior account no longer exists. Balances may have drifted from the
// journal; operators should run a verification pass.
type DriftAlert struct {
	AccountID  string    `json:"account_id"`
	DeltaCents int64     `json:"delta_cents"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Envelope wraps the message kinds sharing the ledger event queue.
type Envelope struct {
	Kind  string       `json:"kind"`
	Event *LedgerEvent `json:"event,omitempty"`
	Drift *DriftAlert  `json:"drift,omitempty"`
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindLedgerEvent:
		if e.Event == nil {
			return nil, fmt.Errorf("ledger event envelope without event payload")
		}
	case KindDriftAlert:
		if e.Drift == nil {
			return nil, fmt.Errorf("drift alert envelope without drift payload")
		}
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return &e, nil
}
