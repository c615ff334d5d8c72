package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

type fakeIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	newErr    error
	cancelled []string
	cancelErr error
	getIntent *stripe.PaymentIntent
	getErr    error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "secret_1", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
}

func (f *fakeIntentAPI) Get(_ string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.getIntent, f.getErr
}

func (f *fakeIntentAPI) Cancel(id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func TestCreateIntentBuildsParams(t *testing.T) {
	api := &fakeIntentAPI{}
	p := &StripeProvider{intents: api, log: zap.NewNop()}

	intent, err := p.CreateIntent(context.Background(), IntentRequest{
		AmountMinor:    5000,
		Currency:       "EUR",
		OrderID:        "o1",
		IdempotencyKey: "order_o1",
		Metadata:       map[string]string{"email": "a@b.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "secret_1", intent.ClientSecret)

	require.NotNil(t, api.newParams)
	assert.Equal(t, int64(5000), *api.newParams.Amount)
	assert.Equal(t, "eur", *api.newParams.Currency)
	assert.Equal(t, "o1", api.newParams.Metadata["orderId"])
	assert.Equal(t, "a@b.com", api.newParams.Metadata["email"])
}

func TestCreateIntentWrapsProviderError(t *testing.T) {
	api := &fakeIntentAPI{newErr: errors.New("rate limited")}
	p := &StripeProvider{intents: api, log: zap.NewNop()}

	_, err := p.CreateIntent(context.Background(), IntentRequest{AmountMinor: 100, Currency: "EUR", OrderID: "o1"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestCancelIntent(t *testing.T) {
	api := &fakeIntentAPI{}
	p := &StripeProvider{intents: api, log: zap.NewNop()}

	require.NoError(t, p.CancelIntent(context.Background(), "pi_1"))
	assert.Equal(t, []string{"pi_1"}, api.cancelled)
}

func TestGetIntent(t *testing.T) {
	api := &fakeIntentAPI{getIntent: &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "s", Status: stripe.PaymentIntentStatusSucceeded}}
	p := &StripeProvider{intents: api, log: zap.NewNop()}

	got, err := p.GetIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", got.Status)
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	_, err := NewStripeProvider("  ", nil)
	assert.Error(t, err)
}
