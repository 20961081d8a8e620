package checkoutsvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ilistingrepo"
	"github.com/corray333/backend-labs/payment/internal/service/models/cart"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/listing"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/corray333/backend-labs/payment/internal/service/services/paymentsvc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLookupChunkSize   = 50
	defaultLookupConcurrency = 4
	defaultLookupTimeout     = 5 * time.Second
)

// Pricer totals a cart of authoritative prices.
type Pricer interface {
	PriceCart(ctx context.Context, items []cart.CartItem) (cart.PricedOrderRequest, error)
}

// PaymentIssuer opens a payment for a priced cart.
type PaymentIssuer interface {
	IssuePayment(ctx context.Context, req cart.PricedOrderRequest) (paymentsvc.IssueResult, error)
}

// Item is a cart line as the client sends it: no price.
type Item struct {
	ListingID string
	Quantity  int
}

// Request is a checkout submitted by a client.
type Request struct {
	Items         []Item
	CorrelationID string
}

// Result is what the client needs to confirm the payment.
type Result struct {
	OrderID          string
	CorrelationID    string
	ClientSecret     string
	AmountMinorUnits int64
	Currency         currency.Currency
}

// CheckoutService resolves listing prices and hands the priced cart to the issuer.
type CheckoutService struct {
	listings      ilistingrepo.IListingRepository
	pricer        Pricer
	issuer        PaymentIssuer
	chunkSize     int
	concurrency   int
	lookupTimeout time.Duration
}

// option is a function that configures the CheckoutService.
type option func(*CheckoutService)

// MustNewCheckoutService creates a new CheckoutService.
func MustNewCheckoutService(opts ...option) *CheckoutService {
	s := &CheckoutService{
		chunkSize:     defaultLookupChunkSize,
		concurrency:   defaultLookupConcurrency,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.listings == nil || s.pricer == nil || s.issuer == nil {
		panic("checkoutsvc: listing repository, pricer and issuer are required")
	}

	return s
}

// WithListingRepository sets the listing price source.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithListingRepository(r ilistingrepo.IListingRepository) option {
	return func(s *CheckoutService) {
		s.listings = r
	}
}

// WithPricer sets the pricing engine.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPricer(p Pricer) option {
	return func(s *CheckoutService) {
		s.pricer = p
	}
}

// WithIssuer sets the payment issuer.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithIssuer(i PaymentIssuer) option {
	return func(s *CheckoutService) {
		s.issuer = i
	}
}

// WithLookupLimits bounds the listing lookups: ids per query and queries in flight.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithLookupLimits(chunkSize, concurrency int) option {
	return func(s *CheckoutService) {
		if chunkSize > 0 {
			s.chunkSize = chunkSize
		}
		if concurrency > 0 {
			s.concurrency = concurrency
		}
	}
}

// WithLookupTimeout bounds the listing lookups as a whole.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithLookupTimeout(d time.Duration) option {
	return func(s *CheckoutService) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

// Checkout prices req from listing records and opens a payment for it.
func (s *CheckoutService) Checkout(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "CheckoutService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.Int("item_count", len(req.Items)))

	if len(req.Items) == 0 {
		return Result{}, &payment.InvalidCartError{Index: -1, Reason: "cart is empty"}
	}
	for i, item := range req.Items {
		if item.ListingID == "" {
			return Result{}, &payment.InvalidCartError{Index: i, Reason: "listing id is required"}
		}
		if item.Quantity <= 0 {
			return Result{}, &payment.InvalidCartError{
				Index:     i,
				ListingID: item.ListingID,
				Reason:    fmt.Sprintf("quantity %d must be positive", item.Quantity),
			}
		}
	}

	listings, err := s.lookupListings(ctx, req.Items)
	if err != nil {
		return Result{}, err
	}

	items := make([]cart.CartItem, len(req.Items))
	for i, item := range req.Items {
		l, ok := listings[item.ListingID]
		if !ok {
			return Result{}, &payment.InvalidCartError{Index: i, ListingID: item.ListingID, Reason: payment.ErrListingNotFound.Error()}
		}
		if !l.Active {
			return Result{}, &payment.InvalidCartError{Index: i, ListingID: item.ListingID, Reason: "listing is not available"}
		}
		items[i] = cart.CartItem{
			ListingID: l.ID,
			UnitPrice: l.Price,
			Quantity:  item.Quantity,
		}
	}

	priced, err := s.pricer.PriceCart(ctx, items)
	if err != nil {
		return Result{}, err
	}
	priced.CorrelationID = req.CorrelationID

	issued, err := s.issuer.IssuePayment(ctx, priced)
	if err != nil {
		return Result{}, err
	}

	slog.Info("Checkout completed",
		"order_id", issued.Order.ID,
		"correlation_id", issued.Order.CorrelationID,
		"amount", issued.Order.AmountMinorUnits,
	)

	return Result{
		OrderID:          issued.Order.ID,
		CorrelationID:    issued.Order.CorrelationID,
		ClientSecret:     issued.ClientSecret,
		AmountMinorUnits: issued.Order.AmountMinorUnits,
		Currency:         issued.Order.Currency,
	}, nil
}

// lookupListings fetches the distinct listings of items in chunks, a few
// chunks at a time.
func (s *CheckoutService) lookupListings(ctx context.Context, items []Item) (map[string]listing.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ListingID]; ok {
			continue
		}
		seen[item.ListingID] = struct{}{}
		ids = append(ids, item.ListingID)
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += s.chunkSize {
		end := min(start+s.chunkSize, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	results := make([]map[string]listing.Listing, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			found, err := s.listings.GetListings(gctx, chunk)
			if err != nil {
				return fmt.Errorf("get listings: %w", err)
			}
			results[i] = found

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]listing.Listing, len(ids))
	for _, found := range results {
		for id, l := range found {
			merged[id] = l
		}
	}

	return merged, nil
}
