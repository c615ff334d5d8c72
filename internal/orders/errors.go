package orders

import "errors"

var (
	// ErrNotFound indicates the referenced order, product or variant row
	// does not exist.
	ErrNotFound = errors.New("orders: not found")
	// ErrIdempotencyConflict indicates an insert lost the race on the
	// idempotency key; the caller should re-read the winner's row.
	ErrIdempotencyConflict = errors.New("orders: idempotency key already exists")
	// ErrStatusConflict indicates the order was not in the expected
	// source state for a transition.
	ErrStatusConflict = errors.New("orders: status transition conflict")
	// ErrIntentMismatch indicates an attach would overwrite a different
	// payment intent id.
	ErrIntentMismatch = errors.New("orders: payment intent already attached")
	// ErrIntentAttached indicates a delete was refused because the order
	// already carries a payment intent.
	ErrIntentAttached = errors.New("orders: cannot delete order with payment intent")
	// ErrStockConflict indicates a decrement would take a stock counter
	// below zero.
	ErrStockConflict = errors.New("orders: insufficient stock for adjustment")
)
