package cart

import (
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/shopspring/decimal"
)

// CartItem is a priced line of a cart. UnitPrice always comes from the
// listing record, never from the client.
type CartItem struct {
	ListingID string          `json:"listingId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// PricedOrderRequest is a cart with its total in minor currency units.
type PricedOrderRequest struct {
	Items           []CartItem        `json:"items"`
	TotalMinorUnits int64             `json:"total"`
	Currency        currency.Currency `json:"currency"`
	CorrelationID   string            `json:"correlationId,omitempty"`
}
