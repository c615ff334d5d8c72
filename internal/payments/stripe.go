package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProvider implements Provider against the Stripe PaymentIntents
// API.
type StripeProvider struct {
	intents stripeIntentAPI
	log     *zap.Logger
}

// NewStripeProvider builds a provider from an API key. The intents
// client can be swapped in tests.
func NewStripeProvider(apiKey string, log *zap.Logger) (*StripeProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe: api key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents, log: log}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.Metadata = make(map[string]string, len(req.Metadata)+1)
	params.Metadata["orderId"] = req.OrderID
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	intent, err := p.intents.New(params)
	if err != nil {
		p.log.Warn("stripe intent create failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return Intent{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	p.log.Info("stripe intent created",
		zap.String("order_id", req.OrderID),
		zap.String("intent_id", intent.ID))
	return fromStripeIntent(intent), nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(id, params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return fromStripeIntent(intent), nil
}

func (p *StripeProvider) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := p.intents.Cancel(id, params); err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	p.log.Info("stripe intent cancelled", zap.String("intent_id", id))
	return nil
}

func fromStripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}
}
