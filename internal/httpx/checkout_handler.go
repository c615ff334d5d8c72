package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/catalog"
	"github.com/citylore/checkout/internal/checkout"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/payments"
)

type CheckoutService interface {
	Submit(ctx context.Context, cmd checkout.SubmitCommand) (checkout.Result, error)
}

type CheckoutHandler struct {
	Svc CheckoutService
	Log *zap.Logger
}

// checkoutRequest deliberately has no price fields: quantities and
// identifiers are all the client gets to say. Website is a honeypot,
// hidden in the form; humans leave it empty.
type checkoutRequest struct {
	Email          string                `json:"email"`
	UserID         *string               `json:"user_id,omitempty"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
	Lines          []catalog.LineRequest `json:"lines"`
	Website        string                `json:"website,omitempty"`
}

type checkoutResponse struct {
	Order        *orders.Order `json:"order"`
	ClientSecret string        `json:"client_secret,omitempty"`
	Idempotent   bool          `json:"idempotent,omitempty"`
}

func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", nil)
		return
	}
	if req.Website != "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid request", nil)
		return
	}

	res, err := h.Svc.Submit(r.Context(), checkout.SubmitCommand{
		Email:          req.Email,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          req.Lines,
	})
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, checkoutResponse{
		Order:        res.Order,
		ClientSecret: res.ClientSecret,
		Idempotent:   res.Idempotent,
	})
}

func (h *CheckoutHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		// Stock-only failures are a momentary state of the world, not a
		// broken request.
		if verr.StockOnly() {
			writeError(w, r, http.StatusConflict, CodeStockConflict,
				"insufficient stock", verr.Lines)
			return
		}
		writeError(w, r, http.StatusBadRequest, CodeCartValidation,
			"cart could not be validated", verr.Lines)
	case errors.Is(err, checkout.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid email address", nil)
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "cart is empty", nil)
	case errors.Is(err, payments.ErrProvider):
		writeError(w, r, http.StatusBadGateway, CodePaymentProvider,
			"payment provider unavailable", nil)
	default:
		h.log().Error("checkout failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal,
			"could not process checkout", nil)
	}
}

func (h *CheckoutHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
