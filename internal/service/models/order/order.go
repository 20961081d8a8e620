package order

import (
	"errors"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
)

// Status is the payment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid order status")

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no payment event can move the order out of s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransition reports whether an order in status from may move to status to.
// Only pending orders move, and only into a terminal status.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusCancelled:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Order represents a checkout attempt bound to one gateway payment intent.
type Order struct {
	ID               string            `json:"id"`
	CorrelationID    string            `json:"correlationId"`
	IntentID         string            `json:"intentId"`
	AmountMinorUnits int64             `json:"amount"`
	Currency         currency.Currency `json:"currency"`
	Status           Status            `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}
