package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/catalog"
	kafkax "github.com/citylore/checkout/internal/kafka"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/payments"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput indicates a malformed checkout command (bad email,
	// missing fields).
	ErrInvalidInput = errors.New("checkout: invalid input")
	// ErrEmptyCart indicates no cart lines were submitted.
	ErrEmptyCart = errors.New("checkout: empty cart")
	// ErrPersist indicates the order could not be finalized after the
	// payment intent was created; both were compensated away.
	ErrPersist = errors.New("checkout: could not finalize order")
)

// OrderLedger is the slice of the order repository this pipeline needs.
type OrderLedger interface {
	Create(ctx context.Context, o *orders.Order) error
	FindByIdempotencyKey(ctx context.Context, key string) (*orders.Order, error)
	AttachPaymentIntent(ctx context.Context, id, intentID string) error
	Delete(ctx context.Context, id string) error
}

// Pricer recomputes cart truth from the catalog.
type Pricer interface {
	Price(ctx context.Context, lines []catalog.LineRequest) (*catalog.Quote, error)
}

// Publisher emits order lifecycle events; nil-safe to omit.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service drives the checkout pipeline:
//
//	price -> idempotency guard -> create pending order -> create intent -> attach
//
// Compensation table (the point of no return is the attach):
//
//	create order      -> compensate: delete order
//	create intent     -> compensate: cancel intent, delete order
//	attach intent     -> no compensation beyond this point
type Service struct {
	Pricer   Pricer
	Ledger   OrderLedger
	Provider payments.Provider
	Producer Publisher
	Service  string
	Log      *zap.Logger
}

// SubmitCommand is one logical checkout attempt. Any prices the client
// sent were dropped at the HTTP edge; only identifiers and quantities
// survive to here.
type SubmitCommand struct {
	Email          string
	UserID         *string
	IdempotencyKey string
	Lines          []catalog.LineRequest
}

type Result struct {
	Order        *orders.Order
	ClientSecret string
	// Idempotent is true when an earlier attempt with the same key
	// already created this order.
	Idempotent bool
}

func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (Result, error) {
	email := strings.TrimSpace(cmd.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Result{}, ErrInvalidInput
	}
	if len(cmd.Lines) == 0 {
		return Result{}, ErrEmptyCart
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = deriveIdempotencyKey(email, cmd.Lines)
	}

	quote, err := s.Pricer.Price(ctx, cmd.Lines)
	if err != nil {
		return Result{}, err
	}

	// Idempotency guard: a retried submission short-circuits to the
	// order the first attempt created. The real safety net is the
	// unique constraint on idempotency_key; this lookup just avoids the
	// round trip in the common case.
	if existing, err := s.Ledger.FindByIdempotencyKey(ctx, key); err == nil {
		return s.replay(ctx, existing), nil
	} else if !errors.Is(err, orders.ErrNotFound) {
		return Result{}, err
	}

	order := &orders.Order{
		ID:             uuid.NewString(),
		Email:          email,
		UserID:         cmd.UserID,
		SubtotalMinor:  quote.SubtotalMinor,
		TotalMinor:     quote.TotalMinor,
		Currency:       quote.Currency,
		Status:         orders.StatusPending,
		IdempotencyKey: key,
		Items:          itemsFromQuote(quote),
	}

	if err := s.Ledger.Create(ctx, order); err != nil {
		if errors.Is(err, orders.ErrIdempotencyConflict) {
			// Lost the race: re-read the winner's row.
			winner, ferr := s.Ledger.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return Result{}, ferr
			}
			return s.replay(ctx, winner), nil
		}
		return Result{}, err
	}

	intent, err := s.Provider.CreateIntent(ctx, payments.IntentRequest{
		AmountMinor:    order.TotalMinor,
		Currency:       order.Currency,
		OrderID:        order.ID,
		IdempotencyKey: "order_" + order.ID,
		Metadata: map[string]string{
			"email":     email,
			"itemCount": fmt.Sprintf("%d", len(order.Items)),
		},
	})
	if err != nil {
		// Compensate: never leave a pending order no confirmation can
		// ever reach.
		s.compensateDelete(ctx, order.ID, "intent_create_failed")
		return Result{}, err
	}

	if err := s.Ledger.AttachPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		s.log().Error("attach payment intent failed",
			zap.String("order_id", order.ID),
			zap.String("intent_id", intent.ID),
			zap.Error(err))
		if cerr := s.Provider.CancelIntent(ctx, intent.ID); cerr != nil {
			s.log().Error("cancel intent during compensation failed",
				zap.String("intent_id", intent.ID),
				zap.Error(cerr))
		}
		s.compensateDelete(ctx, order.ID, "attach_failed")
		return Result{}, ErrPersist
	}
	order.PaymentIntentID = &intent.ID

	s.publishCreated(order)
	s.log().Info("order created",
		zap.String("order_id", order.ID),
		zap.String("intent_id", intent.ID),
		zap.Int64("total_minor", order.TotalMinor))

	return Result{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// replay serves a duplicate submission from the already-created order.
// The client secret is recovered from the provider so the payment form
// can still complete; losing it is not worth failing the request over.
func (s *Service) replay(ctx context.Context, existing *orders.Order) Result {
	res := Result{Order: existing, Idempotent: true}
	if existing.PaymentIntentID == nil {
		return res
	}
	intent, err := s.Provider.GetIntent(ctx, *existing.PaymentIntentID)
	if err != nil {
		s.log().Warn("could not recover client secret for replayed checkout",
			zap.String("order_id", existing.ID),
			zap.Error(err))
		return res
	}
	res.ClientSecret = intent.ClientSecret
	return res
}

func (s *Service) compensateDelete(ctx context.Context, orderID, reason string) {
	if err := s.Ledger.Delete(ctx, orderID); err != nil {
		// Operator attention needed: the order row survived compensation.
		s.log().Error("compensating delete failed",
			zap.String("order_id", orderID),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	s.log().Info("order deleted during compensation",
		zap.String("order_id", orderID),
		zap.String("reason", reason))
}

func (s *Service) publishCreated(o *orders.Order) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    o.ID,
			Email:      o.Email,
			TotalMinor: o.TotalMinor,
			Currency:   o.Currency,
			ItemCount:  len(o.Items),
		}),
	}
	s.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func itemsFromQuote(q *catalog.Quote) []orders.OrderItem {
	items := make([]orders.OrderItem, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, orders.OrderItem{
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			NameSnapshot:   l.NameSnapshot,
			Quantity:       l.Quantity,
			UnitPriceMinor: l.UnitPriceMinor,
			Currency:       l.Currency,
			Metadata:       l.Metadata,
		})
	}
	return items
}

// deriveIdempotencyKey gives clients that omit a key a deterministic
// one: the same email and cart always hash to the same value.
func deriveIdempotencyKey(email string, lines []catalog.LineRequest) string {
	sorted := make([]catalog.LineRequest, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return derefOr(sorted[i].VariantID) < derefOr(sorted[j].VariantID)
	})
	payload, _ := json.Marshal(struct {
		Email string                `json:"email"`
		Lines []catalog.LineRequest `json:"lines"`
	}{Email: email, Lines: sorted})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:32]
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
