package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/orders"
)

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*orders.Order, error)
}

type OrderHandler struct {
	Orders OrderReader
	Log    *zap.Logger
}

// Get serves one order by id. The id is validated before any storage
// round trip, and the response is marked uncacheable: status flips from
// pending to paid are exactly what callers poll for.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "order id must be a UUID", nil)
		return
	}

	order, err := h.Orders.GetByID(r.Context(), id.String())
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "order not found", nil)
		return
	}
	if err != nil {
		h.log().Error("order lookup failed", zap.String("order_id", id.String()), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "could not load order", nil)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
