package pricing

import (
	"context"
	"math"

	"github.com/corray333/backend-labs/payment/internal/service/models/cart"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

var (
	minorPerMajor = decimal.NewFromInt(currency.MinorUnitsPerMajor)
	maxTotal      = decimal.NewFromInt(math.MaxInt64)
)

// Engine turns cart items into a priced order request.
type Engine struct {
	currency currency.Currency
}

// NewEngine creates an Engine that prices carts in cur.
func NewEngine(cur currency.Currency) *Engine {
	return &Engine{currency: cur}
}

// PriceCart sums unit price times quantity over the items. Each line total is
// converted to minor units with round-half-up before the lines are summed.
//
// PriceCart has no side effects. CorrelationID is left empty; the issuer
// assigns one when the caller has none.
func (e *Engine) PriceCart(ctx context.Context, items []cart.CartItem) (cart.PricedOrderRequest, error) {
	_, span := otel.Tracer("service").Start(ctx, "Pricing.PriceCart")
	defer span.End()

	if len(items) == 0 {
		return cart.PricedOrderRequest{}, &payment.InvalidCartError{Index: -1, Reason: "cart is empty"}
	}

	total := decimal.Zero
	for i, item := range items {
		if err := validateItem(i, item); err != nil {
			return cart.PricedOrderRequest{}, err
		}
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line.Mul(minorPerMajor).Round(0))
	}

	if total.GreaterThan(maxTotal) {
		return cart.PricedOrderRequest{}, &payment.InvalidAmountError{Reason: "total overflows minor units"}
	}
	totalMinor := total.IntPart()
	if totalMinor <= 0 {
		return cart.PricedOrderRequest{}, &payment.InvalidAmountError{TotalMinorUnits: totalMinor}
	}

	priced := make([]cart.CartItem, len(items))
	copy(priced, items)

	return cart.PricedOrderRequest{
		Items:           priced,
		TotalMinorUnits: totalMinor,
		Currency:        e.currency,
	}, nil
}

func validateItem(i int, item cart.CartItem) error {
	switch {
	case item.ListingID == "":
		return &payment.InvalidCartError{Index: i, Reason: "listing id is required"}
	case item.Quantity <= 0:
		return &payment.InvalidCartError{Index: i, ListingID: item.ListingID, Reason: "quantity must be positive"}
	case item.UnitPrice.IsNegative():
		return &payment.InvalidCartError{Index: i, ListingID: item.ListingID, Reason: "unit price must not be negative"}
	}
	return nil
}
