package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/citylore/checkout/internal/kafka"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/redisx"
)

// Ledger is the slice of the order repository reconciliation needs.
type Ledger interface {
	FindByPaymentIntent(ctx context.Context, intentID string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to orders.Status) error
}

// Stock adjusts per-SKU counters. Negative deltas decrement on payment,
// positive deltas restore on refund or cancellation.
type Stock interface {
	AdjustProductStock(ctx context.Context, productID string, delta int) error
	AdjustVariantStock(ctx context.Context, variantID string, delta int) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service applies payment confirmation events to the order ledger and
// stock counters. Confirmations arrive at least once and possibly out
// of order; the guarded status update rejects stale transitions and the
// redis dedup set short-circuits redelivery of fully applied events.
type Service struct {
	Ledger   Ledger
	Stock    Stock
	Redis    *redis.Client
	Producer Publisher
	Service  string
	Log      *zap.Logger
}

// HandleConfirmation is the topic handler. A nil return acks the
// message; an error leaves it for redelivery, so only transient store
// failures propagate. Malformed events, unknown intents and stale
// transitions are logged and acked since redelivery cannot fix them.
func (s *Service) HandleConfirmation(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.log().Warn("dropping undecodable confirmation", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentConfirmation {
		return nil
	}

	if env.EventID != "" && s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
		seen, err := redisx.Exists(ctx, s.Redis, key)
		if err != nil {
			// Redis down: fall through, the status guard still holds.
			s.log().Warn("dedup check unavailable", zap.Error(err))
		} else if seen {
			s.log().Debug("skipping already-applied confirmation",
				zap.String("event_id", env.EventID))
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentConfirmationPayload](env.Payload)
	if err != nil {
		s.log().Warn("dropping confirmation with bad payload",
			zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if err := s.Apply(ctx, p); err != nil {
		return err
	}

	if env.EventID != "" && s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
		if err := s.Redis.Set(ctx, key, 1, redisx.TTLDedup).Err(); err != nil {
			s.log().Warn("could not record dedup mark", zap.Error(err))
		}
	}
	return nil
}

// Apply reconciles one confirmation against the ledger. Stock failures
// after a committed status change are logged, never rolled back: the
// money already moved, the counter drift is an operator problem.
func (s *Service) Apply(ctx context.Context, p orders.PaymentConfirmationPayload) error {
	order, err := s.Ledger.FindByPaymentIntent(ctx, p.IntentID)
	if errors.Is(err, orders.ErrNotFound) {
		s.log().Warn("confirmation for unknown payment intent",
			zap.String("intent_id", p.IntentID),
			zap.String("outcome", string(p.Outcome)))
		return nil
	}
	if err != nil {
		return err
	}

	switch p.Outcome {
	case orders.OutcomeSucceeded:
		return s.applyPaid(ctx, order)
	case orders.OutcomeRefunded:
		if !p.FullyRefunded {
			// Partial refunds never restore stock and the order stays
			// paid.
			s.log().Info("partial refund recorded",
				zap.String("order_id", order.ID),
				zap.Int64("amount_minor", p.AmountMinor))
			return nil
		}
		return s.applyReversal(ctx, order, orders.StatusRefunded)
	case orders.OutcomeCancelled:
		return s.applyReversal(ctx, order, orders.StatusCancelled)
	case orders.OutcomeFailed:
		return s.applyFailed(ctx, order)
	default:
		s.log().Warn("unknown confirmation outcome",
			zap.String("order_id", order.ID),
			zap.String("outcome", string(p.Outcome)))
		return nil
	}
}

func (s *Service) applyPaid(ctx context.Context, order *orders.Order) error {
	if order.Status == orders.StatusPaid {
		return nil
	}
	err := s.Ledger.UpdateStatus(ctx, order.ID, orders.StatusPending, orders.StatusPaid)
	if errors.Is(err, orders.ErrStatusConflict) {
		s.log().Warn("stale success confirmation ignored",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return nil
	}
	if err != nil {
		return err
	}
	s.adjustItems(ctx, order, -1)
	s.publishSettled(order, orders.StatusPaid)
	s.log().Info("order paid",
		zap.String("order_id", order.ID),
		zap.Int64("total_minor", order.TotalMinor))
	return nil
}

// applyReversal handles full refunds and cancellations of a paid
// order. Stock comes back before the status flip. Delivery is at least
// once: a transient UpdateStatus failure after the increments means the
// redelivered event increments again, over-restoring stock. The reverse
// ordering would under-restore instead, which is the worse direction
// for a customer-facing counter, so the surplus is left to operator
// reconciliation.
func (s *Service) applyReversal(ctx context.Context, order *orders.Order, to orders.Status) error {
	if order.Status == to {
		return nil
	}
	if order.Status != orders.StatusPaid {
		s.log().Warn("reversal for order not in paid state ignored",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("target", string(to)))
		return nil
	}
	s.adjustItems(ctx, order, 1)
	err := s.Ledger.UpdateStatus(ctx, order.ID, orders.StatusPaid, to)
	if errors.Is(err, orders.ErrStatusConflict) {
		s.log().Warn("stale reversal confirmation ignored",
			zap.String("order_id", order.ID),
			zap.String("target", string(to)))
		return nil
	}
	if err != nil {
		return err
	}
	s.publishSettled(order, to)
	s.log().Info("order reversed",
		zap.String("order_id", order.ID),
		zap.String("status", string(to)))
	return nil
}

func (s *Service) applyFailed(ctx context.Context, order *orders.Order) error {
	if order.Status == orders.StatusFailed {
		return nil
	}
	err := s.Ledger.UpdateStatus(ctx, order.ID, orders.StatusPending, orders.StatusFailed)
	if errors.Is(err, orders.ErrStatusConflict) {
		s.log().Warn("stale failure confirmation ignored",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return nil
	}
	if err != nil {
		return err
	}
	s.publishSettled(order, orders.StatusFailed)
	s.log().Info("order failed", zap.String("order_id", order.ID))
	return nil
}

// adjustItems moves every line's quantity by sign (-1 on payment, +1 on
// reversal). Variant lines hit the variant counter, plain lines the
// product counter. Failures are logged per line; the order state is
// already committed and a refund must not be blocked by a sold-out
// counter.
func (s *Service) adjustItems(ctx context.Context, order *orders.Order, sign int) {
	for _, it := range order.Items {
		delta := sign * it.Quantity
		var err error
		if it.VariantID != nil {
			err = s.Stock.AdjustVariantStock(ctx, *it.VariantID, delta)
		} else {
			err = s.Stock.AdjustProductStock(ctx, it.ProductID, delta)
		}
		if err != nil {
			s.log().Error("stock adjustment failed",
				zap.String("order_id", order.ID),
				zap.String("product_id", it.ProductID),
				zap.Int("delta", delta),
				zap.Error(err))
		}
	}
}

func (s *Service) publishSettled(order *orders.Order, status orders.Status) {
	if s.Producer == nil {
		return
	}
	intentID := ""
	if order.PaymentIntentID != nil {
		intentID = *order.PaymentIntentID
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderSettled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(orders.OrderSettledPayload{
			OrderID:  order.ID,
			Status:   status,
			IntentID: intentID,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderSettled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
