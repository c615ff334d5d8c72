package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo owns the orders and order_items tables. Cross-request safety
// lives in the store: the unique constraint on idempotency_key and
// status-guarded updates, not application locks.
type Repo struct{ DB *pgxpool.Pool }

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Create inserts the order row and its items in one transaction. A
// duplicate idempotency key surfaces as ErrIdempotencyConflict; the
// caller re-reads the winning row instead of failing.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, email, user_id, subtotal_minor, total_minor, currency, status, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		o.ID, o.Email, o.UserID, o.SubtotalMinor, o.TotalMinor, o.Currency, string(o.Status), o.IdempotencyKey,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID

		meta, err := encodeItemMetadata(it.Metadata)
		if err != nil {
			return fmt.Errorf("encode item metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, variant_id, name_snapshot, quantity, unit_price_minor, currency, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, it.OrderID, it.ProductID, it.VariantID, it.NameSnapshot, it.Quantity, it.UnitPriceMinor, it.Currency, meta,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindByIdempotencyKey returns the order created for a previous attempt
// with the same key, or ErrNotFound. Items are loaded: a replayed
// checkout response must carry the same line items the first one did.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	o, err := r.findOne(ctx, `WHERE idempotency_key = $1`, key)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID loads an order with its items and the denormalized product
// snapshot used by the confirmation page.
func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	o, err := r.findOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// FindByPaymentIntent resolves the order correlated with a provider
// intent id, items included.
func (r *Repo) FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error) {
	o, err := r.findOne(ctx, `WHERE payment_intent_id = $1`, intentID)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) findOne(ctx context.Context, where string, arg any) (*Order, error) {
	var (
		o      Order
		status string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, email, user_id, subtotal_minor, total_minor, currency, status, payment_intent_id, idempotency_key, created_at, updated_at
		FROM orders `+where,
		arg,
	).Scan(&o.ID, &o.Email, &o.UserID, &o.SubtotalMinor, &o.TotalMinor, &o.Currency, &status, &o.PaymentIntentID, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT i.id, i.product_id, i.variant_id, i.name_snapshot, i.quantity, i.unit_price_minor, i.currency, i.metadata,
		       p.id, p.name, p.slug, p.images
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var (
			it     OrderItem
			meta   []byte
			pID    *string
			pName  *string
			pSlug  *string
			images []string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.NameSnapshot, &it.Quantity, &it.UnitPriceMinor, &it.Currency, &meta,
			&pID, &pName, &pSlug, &images); err != nil {
			return err
		}
		it.OrderID = o.ID
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &it.Metadata); err != nil {
				return fmt.Errorf("decode item metadata: %w", err)
			}
		}
		if pID != nil {
			it.Product = &ProductSnapshot{ID: *pID, Slug: derefString(pSlug), Images: images}
			if pName != nil {
				it.Product.Name = *pName
			}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	o.Items = items
	return nil
}

// UpdateStatus applies a guarded transition: the row only changes when
// it is still in the expected source state, which is what rejects
// duplicate or out-of-order confirmation signals.
func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return ErrStatusConflict
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, string(to), string(from))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// Distinguish "gone" from "raced".
	var current string
	err = r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStatusConflict
}

// AttachPaymentIntent sets the intent id once. Re-attaching the same
// value is a no-op; a different value is ErrIntentMismatch.
func (r *Repo) AttachPaymentIntent(ctx context.Context, id, intentID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_intent_id = $2, updated_at = now()
		WHERE id = $1 AND (payment_intent_id IS NULL OR payment_intent_id = $2)`,
		id, intentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var existing *string
	err = r.DB.QueryRow(ctx, `SELECT payment_intent_id FROM orders WHERE id = $1`, id).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrIntentMismatch
}

// Delete hard-deletes an order and (via FK cascade) its items. Used only
// for compensation, and only while no payment intent is attached.
func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM orders WHERE id = $1 AND payment_intent_id IS NULL`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrIntentAttached
	}
	return ErrNotFound
}

// encodeItemMetadata always yields a JSON object, never nil: a nil
// byte slice would reach the store as SQL NULL and violate the NOT NULL
// constraint on order_items.metadata.
func encodeItemMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
