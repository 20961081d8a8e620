package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/corray333/backend-labs/payment/internal/transport/http/response"
)

// SignatureHeader carries the gateway's timestamped HMAC.
const SignatureHeader = "Stripe-Signature"

// service is an interface for the service layer.
type service interface {
	HandleInboundEvent(ctx context.Context, payload []byte, sigHeader string) (payment.Outcome, error)
}

type receivedResponse struct {
	Received bool            `json:"received"`
	Outcome  payment.Outcome `json:"outcome"`
}

// HandleEvent reads the raw delivery and reconciles it. A 2xx tells the
// gateway to stop redelivering; store failures answer 5xx so it retries.
func HandleEvent(w http.ResponseWriter, r *http.Request, service service, maxBodyBytes int64) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.WriteMessage(w, http.StatusRequestEntityTooLarge, "payload too large")

			return
		}
		response.WriteMessage(w, http.StatusBadRequest, "could not read payload")

		return
	}

	outcome, err := service.HandleInboundEvent(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		response.WriteError(w, r, err)

		return
	}

	response.WriteJSON(w, http.StatusOK, receivedResponse{
		Received: true,
		Outcome:  outcome,
	})
}
