package payments

import (
	"context"
	"errors"
)

// ErrProvider wraps any failure talking to the external payment
// provider; callers treat it as a gateway fault and compensate.
var ErrProvider = errors.New("payments: provider request failed")

// IntentRequest asks the provider to authorize a payment for one order.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	OrderID     string
	Metadata    map[string]string
	// IdempotencyKey makes a replayed create return the same intent.
	IdempotencyKey string
}

// Intent is the provider-side object correlated to exactly one order.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Provider is the contract this core requires from a payment provider.
// The confirmation signal arrives separately, through the verified
// event channel consumed by the reconciler.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	CancelIntent(ctx context.Context, id string) error
}
