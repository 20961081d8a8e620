package order

import (
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
)

// StatusChangedEventType is the routing name of StatusChanged messages.
const StatusChangedEventType = "order.status_changed"

// StatusChanged is published once per applied status transition.
type StatusChanged struct {
	Type             string            `json:"type"`
	OrderID          string            `json:"orderId"`
	IntentID         string            `json:"intentId"`
	CorrelationID    string            `json:"correlationId"`
	From             Status            `json:"from"`
	To               Status            `json:"to"`
	AmountMinorUnits int64             `json:"amount"`
	Currency         currency.Currency `json:"currency"`
	OccurredAt       time.Time         `json:"occurredAt"`
}
