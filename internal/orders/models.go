package orders

import "time"

// Order is the durable record of one checkout attempt. TotalMinor is
// always recomputed server-side from catalog prices; amounts are in the
// currency's minor unit.
type Order struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	UserID          *string     `json:"user_id,omitempty"`
	SubtotalMinor   int64       `json:"subtotal_minor"`
	TotalMinor      int64       `json:"total_minor"`
	Currency        string      `json:"currency"`
	Status          Status      `json:"status"`
	PaymentIntentID *string     `json:"payment_intent_id,omitempty"`
	IdempotencyKey  string      `json:"-"`
	Items           []OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem is owned exclusively by its parent order. NameSnapshot is
// frozen at purchase time so later catalog edits don't rewrite history.
// Metadata is an opaque bag (selected variant attributes and the like);
// it never influences pricing or stock.
type OrderItem struct {
	ID             string         `json:"id"`
	OrderID        string         `json:"-"`
	ProductID      string         `json:"product_id"`
	VariantID      *string        `json:"variant_id,omitempty"`
	NameSnapshot   string         `json:"name_snapshot"`
	Quantity       int            `json:"quantity"`
	UnitPriceMinor int64          `json:"unit_price_minor"`
	Currency       string         `json:"currency"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	// Denormalized catalog fields for the confirmation page; populated
	// on reads, nil for products deleted since purchase.
	Product *ProductSnapshot `json:"product,omitempty"`
}

type ProductSnapshot struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Slug   string   `json:"slug"`
	Images []string `json:"images"`
}
