package checkout

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/citylore/checkout/internal/catalog"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/payments"
)

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Create(ctx context.Context, o *orders.Order) error {
	return m.Called(ctx, o).Error(0)
}
func (m *mockLedger) FindByIdempotencyKey(ctx context.Context, key string) (*orders.Order, error) {
	args := m.Called(ctx, key)
	if o := args.Get(0); o != nil {
		return o.(*orders.Order), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockLedger) AttachPaymentIntent(ctx context.Context, id, intentID string) error {
	return m.Called(ctx, id, intentID).Error(0)
}
func (m *mockLedger) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.Intent), args.Error(1)
}
func (m *mockProvider) GetIntent(ctx context.Context, id string) (payments.Intent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payments.Intent), args.Error(1)
}
func (m *mockProvider) CancelIntent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type staticPricer struct {
	quote *catalog.Quote
	err   error
}

func (p staticPricer) Price(_ context.Context, _ []catalog.LineRequest) (*catalog.Quote, error) {
	return p.quote, p.err
}

type recordingPublisher struct{ published int }

func (r *recordingPublisher) Publish(_, _ []byte, _ ...kafkago.Header) { r.published++ }

func testQuote() *catalog.Quote {
	return &catalog.Quote{
		Lines: []catalog.PricedLine{
			{ProductID: "p1", NameSnapshot: "Tote", Quantity: 2, UnitPriceMinor: 2500, Currency: "EUR"},
		},
		Currency:      "EUR",
		SubtotalMinor: 5000,
		TotalMinor:    5000,
	}
}

func testCommand() SubmitCommand {
	return SubmitCommand{
		Email:          "buyer@example.com",
		IdempotencyKey: "key-1",
		Lines:          []catalog.LineRequest{{ProductID: "p1", Quantity: 2}},
	}
}

func TestSubmitCreatesOrderAndIntent(t *testing.T) {
	ledger := new(mockLedger)
	provider := new(mockProvider)
	pub := &recordingPublisher{}
	svc := &Service{Pricer: staticPricer{quote: testQuote()}, Ledger: ledger, Provider: provider, Producer: pub}

	ledger.On("FindByIdempotencyKey", mock.Anything, "key-1").Return(nil, orders.ErrNotFound).Once()
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(o *orders.Order) bool {
		return o.TotalMinor == 5000 && o.Status == orders.StatusPending && o.IdempotencyKey == "key-1" && len(o.Items) == 1
	})).Return(nil).Once()
	provider.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req payments.IntentRequest) bool {
		return req.AmountMinor == 5000 && req.Currency == "EUR" && req.IdempotencyKey == "order_"+req.OrderID
	})).Return(payments.Intent{ID: "pi_1", ClientSecret: "secret_1"}, nil).Once()
	ledger.On("AttachPaymentIntent", mock.Anything, mock.Anything, "pi_1").Return(nil).Once()

	res, err := svc.Submit(context.Background(), testCommand())
	require.NoError(t, err)
	assert.False(t, res.Idempotent)
	assert.Equal(t, "secret_1", res.ClientSecret)
	require.NotNil(t, res.Order.PaymentIntentID)
	assert.Equal(t, "pi_1", *res.Order.PaymentIntentID)
	assert.Equal(t, 1, pub.published)
	ledger.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestSubmitPricesServerSide(t *testing.T) {
	// Whatever totals the caller imagined, the stored order carries the
	// quote's numbers.
	ledger := new(mockLedger)
	provider := new(mockProvider)
	q := testQuote()
	q.SubtotalMinor, q.TotalMinor = 7300, 7300
	svc := &Service{Pricer: staticPricer{quote: q}, Ledger: ledger, Provider: provider}

	ledger.On("FindByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, orders.ErrNotFound)
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(o *orders.Order) bool {
		return o.TotalMinor == 7300 && o.SubtotalMinor == 7300
	})).Return(nil)
	provider.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req payments.IntentRequest) bool {
		return req.AmountMinor == 7300
	})).Return(payments.Intent{ID: "pi_1"}, nil)
	ledger.On("AttachPaymentIntent", mock.Anything, mock.Anything, "pi_1").Return(nil)

	_, err := svc.Submit(context.Background(), testCommand())
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestSubmitReplaysExistingOrder(t *testing.T) {
	intentID := "pi_old"
	existing := &orders.Order{
		ID:              "o1",
		Status:          orders.StatusPending,
		PaymentIntentID: &intentID,
		Items: []orders.OrderItem{
			{ProductID: "p1", NameSnapshot: "Tote", Quantity: 2, UnitPriceMinor: 2500, Currency: "EUR"},
		},
	}
	ledger := new(mockLedger)
	provider := new(mockProvider)
	svc := &Service{Pricer: staticPricer{quote: testQuote()}, Ledger: ledger, Provider: provider}

	ledger.On("FindByIdempotencyKey", mock.Anything, "key-1").Return(existing, nil).Once()
	provider.On("GetIntent", mock.Anything, "pi_old").Return(payments.Intent{ID: "pi_old", ClientSecret: "secret_old"}, nil).Once()

	res, err := svc.Submit(context.Background(), testCommand())
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Equal(t, "o1", res.Order.ID)
	assert.Equal(t, "secret_old", res.ClientSecret)
	// The replay carries the original line items, same as the first
	// response did.
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "p1", res.Order.Items[0].ProductID)
	ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitRaceLoserReFetchesWinner(t *testing.T) {
	intentID := "pi_win"
	winner := &orders.Order{ID: "o-win", Status: orders.StatusPending, PaymentIntentID: &intentID}
	ledger := new(mockLedger)
	provider := new(mockProvider)
	svc := &Service{Pricer: staticPricer{quote: testQuote()}, Ledger: ledger, Provider: provider}

	// First lookup misses, the insert then hits the unique constraint.
	ledger.On("FindByIdempotencyKey", mock.Anything, "key-1").Return(nil, orders.ErrNotFound).Once()
	ledger.On("Create", mock.Anything, mock.Anything).Return(orders.ErrIdempotencyConflict).Once()
	ledger.On("FindByIdempotencyKey", mock.Anything, "key-1").Return(winner, nil).Once()
	provider.On("GetIntent", mock.Anything, "pi_win").Return(payments.Intent{ClientSecret: "s"}, nil).Once()

	res, err := svc.Submit(context.Background(), testCommand())
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Equal(t, "o-win", res.Order.ID)
	ledger.AssertExpectations(t)
}

func TestSubmitDeletesOrderWhenIntentCreationFails(t *testing.T) {
	ledger := new(mockLedger)
	provider := new(mockProvider)
	svc := &Service{Pricer: staticPricer{quote: testQuote()}, Ledger: ledger, Provider: provider}

	ledger.On("FindByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, orders.ErrNotFound)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	provider.On("CreateIntent", mock.Anything, mock.Anything).
		Return(payments.Intent{}, payments.ErrProvider).Once()
	ledger.On("Delete", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Submit(context.Background(), testCommand())
	require.ErrorIs(t, err, payments.ErrProvider)
	ledger.AssertCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSubmitCancelsIntentAndDeletesWhenAttachFails(t *testing.T) {
	ledger := new(mockLedger)
	provider := new(mockProvider)
	svc := &Service{Pricer: staticPricer{quote: testQuote()}, Ledger: ledger, Provider: provider}

	ledger.On("FindByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, orders.ErrNotFound)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	provider.On("CreateIntent", mock.Anything, mock.Anything).Return(payments.Intent{ID: "pi_1"}, nil)
	ledger.On("AttachPaymentIntent", mock.Anything, mock.Anything, "pi_1").Return(errors.New("write failed")).Once()
	provider.On("CancelIntent", mock.Anything, "pi_1").Return(nil).Once()
	ledger.On("Delete", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Submit(context.Background(), testCommand())
	require.ErrorIs(t, err, ErrPersist)
	provider.AssertCalled(t, "CancelIntent", mock.Anything, "pi_1")
	ledger.AssertCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSubmitValidatesInput(t *testing.T) {
	svc := &Service{}

	cmd := testCommand()
	cmd.Email = "not-an-email"
	_, err := svc.Submit(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrInvalidInput)

	cmd = testCommand()
	cmd.Lines = nil
	_, err = svc.Submit(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestDeriveIdempotencyKeyIsOrderInsensitive(t *testing.T) {
	v := "v1"
	a := []catalog.LineRequest{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", VariantID: &v, Quantity: 2},
	}
	b := []catalog.LineRequest{
		{ProductID: "p2", VariantID: &v, Quantity: 2},
		{ProductID: "p1", Quantity: 1},
	}
	assert.Equal(t, deriveIdempotencyKey("a@b.com", a), deriveIdempotencyKey("a@b.com", b))
	assert.NotEqual(t, deriveIdempotencyKey("a@b.com", a), deriveIdempotencyKey("x@y.com", a))
	assert.Len(t, deriveIdempotencyKey("a@b.com", a), 32)
}
