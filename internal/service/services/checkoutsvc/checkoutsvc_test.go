package checkoutsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/corray333/backend-labs/payment/internal/service/models/cart"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/listing"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/corray333/backend-labs/payment/internal/service/services/paymentsvc"
	"github.com/corray333/backend-labs/payment/internal/service/services/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListings struct {
	mu       sync.Mutex
	listings map[string]listing.Listing
	calls    [][]string
	err      error
}

func newFakeListings(ls ...listing.Listing) *fakeListings {
	f := &fakeListings{listings: make(map[string]listing.Listing)}
	for _, l := range ls {
		f.listings[l.ID] = l
	}
	return f
}

func (f *fakeListings) GetListings(_ context.Context, ids []string) (map[string]listing.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]listing.Listing)
	for _, id := range ids {
		if l, ok := f.listings[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type fakeIssuer struct {
	got []cart.PricedOrderRequest
	err error
}

func (f *fakeIssuer) IssuePayment(_ context.Context, req cart.PricedOrderRequest) (paymentsvc.IssueResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return paymentsvc.IssueResult{}, f.err
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = "generated"
	}
	return paymentsvc.IssueResult{
		Order: order.Order{
			ID:               "order-1",
			CorrelationID:    correlationID,
			IntentID:         "pi_1",
			AmountMinorUnits: req.TotalMinorUnits,
			Currency:         req.Currency,
			Status:           order.StatusPending,
		},
		ClientSecret: "pi_1_secret",
	}, nil
}

func active(id, price string) listing.Listing {
	return listing.Listing{ID: id, Title: id, Price: decimal.RequireFromString(price), Active: true}
}

func newService(listings *fakeListings, issuer *fakeIssuer, opts ...option) *CheckoutService {
	base := []option{
		WithListingRepository(listings),
		WithPricer(pricing.NewEngine(currency.CurrencyUSD)),
		WithIssuer(issuer),
	}
	return MustNewCheckoutService(append(base, opts...)...)
}

func TestCheckoutService_Checkout(t *testing.T) {
	t.Parallel()

	t.Run("prices from listings and issues payment", func(t *testing.T) {
		listings := newFakeListings(active("jacket", "25.00"), active("scarf", "10.50"))
		issuer := &fakeIssuer{}
		svc := newService(listings, issuer)

		res, err := svc.Checkout(context.Background(), Request{
			Items:         []Item{{ListingID: "jacket", Quantity: 2}, {ListingID: "scarf", Quantity: 1}},
			CorrelationID: "corr-1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(6050), res.AmountMinorUnits)
		assert.Equal(t, currency.CurrencyUSD, res.Currency)
		assert.Equal(t, "order-1", res.OrderID)
		assert.Equal(t, "corr-1", res.CorrelationID)
		assert.Equal(t, "pi_1_secret", res.ClientSecret)

		require.Len(t, issuer.got, 1)
		assert.Equal(t, "corr-1", issuer.got[0].CorrelationID)
		assert.True(t, issuer.got[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("25.00")))
	})

	t.Run("repeated listing is fetched once", func(t *testing.T) {
		listings := newFakeListings(active("pin", "1.00"))
		svc := newService(listings, &fakeIssuer{})

		res, err := svc.Checkout(context.Background(), Request{
			Items: []Item{{ListingID: "pin", Quantity: 1}, {ListingID: "pin", Quantity: 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(300), res.AmountMinorUnits)
		require.Len(t, listings.calls, 1)
		assert.Equal(t, []string{"pin"}, listings.calls[0])
	})

	t.Run("large cart is looked up in chunks", func(t *testing.T) {
		listings := newFakeListings()
		items := make([]Item, 0, 120)
		for i := 0; i < 120; i++ {
			id := fmt.Sprintf("l-%03d", i)
			listings.listings[id] = active(id, "0.10")
			items = append(items, Item{ListingID: id, Quantity: 1})
		}
		svc := newService(listings, &fakeIssuer{}, WithLookupLimits(50, 2))

		res, err := svc.Checkout(context.Background(), Request{Items: items})
		require.NoError(t, err)
		assert.Equal(t, int64(1200), res.AmountMinorUnits)

		total := 0
		for _, call := range listings.calls {
			assert.LessOrEqual(t, len(call), 50)
			total += len(call)
		}
		assert.Len(t, listings.calls, 3)
		assert.Equal(t, 120, total)
	})

	t.Run("unknown listing names the item", func(t *testing.T) {
		listings := newFakeListings(active("jacket", "25.00"))
		issuer := &fakeIssuer{}
		svc := newService(listings, issuer)

		_, err := svc.Checkout(context.Background(), Request{
			Items: []Item{{ListingID: "jacket", Quantity: 1}, {ListingID: "ghost", Quantity: 1}},
		})
		var cartErr *payment.InvalidCartError
		require.ErrorAs(t, err, &cartErr)
		assert.Equal(t, 1, cartErr.Index)
		assert.Equal(t, "ghost", cartErr.ListingID)
		assert.Empty(t, issuer.got)
	})

	t.Run("inactive listing is rejected", func(t *testing.T) {
		retired := active("old", "5.00")
		retired.Active = false
		svc := newService(newFakeListings(retired), &fakeIssuer{})

		_, err := svc.Checkout(context.Background(), Request{Items: []Item{{ListingID: "old", Quantity: 1}}})
		require.ErrorIs(t, err, payment.ErrInvalidCart)
	})

	t.Run("invalid lines are rejected before lookup", func(t *testing.T) {
		cases := map[string][]Item{
			"empty cart":     nil,
			"zero quantity":  {{ListingID: "a", Quantity: 0}},
			"missing id":     {{ListingID: "", Quantity: 1}},
			"negative count": {{ListingID: "a", Quantity: 1}, {ListingID: "b", Quantity: -1}},
		}
		for name, items := range cases {
			listings := newFakeListings(active("a", "1.00"), active("b", "1.00"))
			svc := newService(listings, &fakeIssuer{})

			_, err := svc.Checkout(context.Background(), Request{Items: items})
			require.ErrorIs(t, err, payment.ErrInvalidCart, name)
			assert.Empty(t, listings.calls, name)
		}
	})

	t.Run("free cart is an invalid amount", func(t *testing.T) {
		issuer := &fakeIssuer{}
		svc := newService(newFakeListings(active("sticker", "0")), issuer)

		_, err := svc.Checkout(context.Background(), Request{Items: []Item{{ListingID: "sticker", Quantity: 4}}})
		require.ErrorIs(t, err, payment.ErrInvalidAmount)
		assert.Empty(t, issuer.got)
	})

	t.Run("lookup failure is returned", func(t *testing.T) {
		listings := newFakeListings()
		listings.err = fmt.Errorf("query listings: %w", payment.ErrStoreUnavailable)
		svc := newService(listings, &fakeIssuer{})

		_, err := svc.Checkout(context.Background(), Request{Items: []Item{{ListingID: "a", Quantity: 1}}})
		require.ErrorIs(t, err, payment.ErrStoreUnavailable)
	})

	t.Run("issuer errors pass through", func(t *testing.T) {
		issuer := &fakeIssuer{err: &payment.DuplicateRequestError{CorrelationID: "corr-dup"}}
		svc := newService(newFakeListings(active("a", "1.00")), issuer)

		_, err := svc.Checkout(context.Background(), Request{
			Items:         []Item{{ListingID: "a", Quantity: 1}},
			CorrelationID: "corr-dup",
		})
		require.ErrorIs(t, err, payment.ErrDuplicateRequest)
		assert.False(t, errors.Is(err, payment.ErrInvalidCart))
	})
}
