package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorBody is the envelope every non-2xx response carries.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	CodeInvalidRequest  = "invalid_request"
	CodeCartValidation  = "cart_validation_failed"
	CodeNotFound        = "not_found"
	CodeStockConflict   = "stock_conflict"
	CodePaymentProvider = "payment_provider_error"
	CodeInternal        = "internal_error"
	CodeTooManyRequests = "too_many_requests"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details any) {
	writeJSON(w, status, ErrorBody{
		Code:      code,
		Message:   msg,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
