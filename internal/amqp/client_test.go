package amqp

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed channel", errors.New("message channel closed"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"handler error", errors.New("export failed: sheet not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	event := &LedgerEvent{
		Entity:    EntityTransaction,
		Op:        OpCreated,
		EntityID:  "t1",
		OwnerID:   "u1",
		Timestamp: time.Now().UTC(),
	}
	body, err := (&Envelope{Kind: KindLedgerEvent, Event: event}).ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := EnvelopeFromJSON(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Event == nil || decoded.Event.EntityID != "t1" {
		t.Fatalf("decoded envelope lost payload: %+v", decoded)
	}
}

func TestEnvelopeFromJSONRejectsMismatchedKind(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"other"}`},
		{"event kind without event", `{"kind":"ledger_event"}`},
		{"drift kind without drift", `{"kind":"drift_alert"}`},
		{"not json", `garbage`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EnvelopeFromJSON([]byte(tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
