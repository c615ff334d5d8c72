package orders

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentConfirmation = "PaymentConfirmation"
	EventOrderCreated        = "OrderCreated"
	EventOrderSettled        = "OrderSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ConfirmationOutcome string

const (
	OutcomeSucceeded ConfirmationOutcome = "succeeded"
	OutcomeFailed    ConfirmationOutcome = "failed"
	OutcomeRefunded  ConfirmationOutcome = "refunded"
	OutcomeCancelled ConfirmationOutcome = "cancelled"
)

// PaymentConfirmationPayload is the verified signal from the
// provider-facing boundary. Signature checking happens there; by the
// time it lands on the topic it is trusted.
type PaymentConfirmationPayload struct {
	IntentID    string              `json:"intent_id"`
	Outcome     ConfirmationOutcome `json:"outcome"`
	AmountMinor int64               `json:"amount_minor,omitempty"`
	// FullyRefunded distinguishes full from partial refunds; only full
	// refunds restore stock.
	FullyRefunded bool `json:"fully_refunded,omitempty"`
}

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	Email      string `json:"email"`
	TotalMinor int64  `json:"total_minor"`
	Currency   string `json:"currency"`
	ItemCount  int    `json:"item_count"`
}

type OrderSettledPayload struct {
	OrderID  string `json:"order_id"`
	Status   Status `json:"status"`
	IntentID string `json:"intent_id,omitempty"`
}
