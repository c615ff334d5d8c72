package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface. The rate limiter guards only the
// order read path; checkout is already throttled by the payment
// provider's own limits.
func NewRouter(checkout *CheckoutHandler, ord *OrderHandler, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/checkout", checkout.Submit)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Get("/orders/{id}", ord.Get)
	})

	return r
}
