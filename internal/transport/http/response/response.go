package response

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}

// WriteMessage writes a JSON error body with the given status.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteError maps a service error onto a status and a client-safe message.
// Gateway and store internals are logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := Classify(err)

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	WriteMessage(w, status, msg)
}

// Classify returns the HTTP status and response message for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, payment.ErrInvalidCart), errors.Is(err, payment.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, payment.ErrDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrSignatureVerification):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, payment.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed event"
	case errors.Is(err, payment.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, payment.ErrPaymentGateway):
		return http.StatusBadGateway, "payment gateway unavailable"
	case errors.Is(err, payment.ErrInconsistency):
		return http.StatusInternalServerError, "payment was opened but could not be recorded"
	case errors.Is(err, payment.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
