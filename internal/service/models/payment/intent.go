package payment

import (
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
)

// IntentRequest is what the gateway needs to open a payment intent.
type IntentRequest struct {
	AmountMinorUnits int64
	Currency         currency.Currency
	CorrelationID    string
	Metadata         map[string]string
}

// IntentRef identifies an opened payment intent.
type IntentRef struct {
	IntentID      string
	CorrelationID string
	ClientSecret  string
}

// OrphanedIntent describes a gateway intent whose local order could not be saved.
type OrphanedIntent struct {
	IntentID         string            `json:"intentId"`
	CorrelationID    string            `json:"correlationId"`
	AmountMinorUnits int64             `json:"amount"`
	Currency         currency.Currency `json:"currency"`
	Error            string            `json:"error"`
	DetectedAt       time.Time         `json:"detectedAt"`
}
