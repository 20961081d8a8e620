package paymentsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/corray333/backend-labs/payment/internal/clock"
	"github.com/corray333/backend-labs/payment/internal/service/models/cart"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultStoreTimeout   = 5 * time.Second

	// Gateways cap metadata values; Stripe allows 500 characters.
	maxMetadataValueLen = 500
)

// Gateway opens payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.IntentRef, error)
}

// OrderRepository persists orders created by the issuer.
type OrderRepository interface {
	// GetByCorrelationID returns nil when no order carries the correlation id.
	GetByCorrelationID(ctx context.Context, correlationID string) (*order.Order, error)
	// Create fails with a DuplicateRequestError when the correlation id is taken.
	Create(ctx context.Context, o order.Order) (order.Order, error)
}

// InconsistencyReporter surfaces intents that were opened without a local order.
type InconsistencyReporter interface {
	ReportOrphanedIntent(ctx context.Context, orphan payment.OrphanedIntent) error
}

// IssueResult is what a successful IssuePayment hands back to the checkout flow.
type IssueResult struct {
	Order        order.Order
	ClientSecret string
}

// Issuer opens payment intents and records the matching pending orders.
type Issuer struct {
	gateway        Gateway
	orders         OrderRepository
	reporter       InconsistencyReporter
	clock          clock.Clock
	gatewayTimeout time.Duration
	storeTimeout   time.Duration
}

// option is a function that configures the Issuer.
type option func(*Issuer)

// MustNewIssuer creates a new Issuer. It panics when the gateway or the
// order repository is missing.
func MustNewIssuer(opts ...option) *Issuer {
	s := &Issuer{
		clock:          clock.NewSystem(),
		gatewayTimeout: defaultGatewayTimeout,
		storeTimeout:   defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.gateway == nil {
		panic("paymentsvc: gateway is required")
	}
	if s.orders == nil {
		panic("paymentsvc: order repository is required")
	}

	return s
}

// WithGateway sets the payment gateway.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(g Gateway) option {
	return func(s *Issuer) {
		s.gateway = g
	}
}

// WithOrderRepository sets the order repository.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(r OrderRepository) option {
	return func(s *Issuer) {
		s.orders = r
	}
}

// WithInconsistencyReporter sets where orphaned intents are reported.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInconsistencyReporter(r InconsistencyReporter) option {
	return func(s *Issuer) {
		s.reporter = r
	}
}

// WithClock sets the clock used for order timestamps.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(c clock.Clock) option {
	return func(s *Issuer) {
		s.clock = c
	}
}

// WithGatewayTimeout bounds the gateway call.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGatewayTimeout(d time.Duration) option {
	return func(s *Issuer) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithStoreTimeout bounds each store call.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStoreTimeout(d time.Duration) option {
	return func(s *Issuer) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// IssuePayment opens a payment intent for req and records a pending order.
//
// The gateway is called once, without retry. No order is written unless the
// gateway call succeeds. A correlation id already bound to an order fails with
// DuplicateRequestError before the gateway is contacted.
func (s *Issuer) IssuePayment(ctx context.Context, req cart.PricedOrderRequest) (IssueResult, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Issuer.IssuePayment")
	defer span.End()

	if req.TotalMinorUnits <= 0 {
		return IssueResult{}, &payment.InvalidAmountError{TotalMinorUnits: req.TotalMinorUnits}
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("correlation_id", correlationID))

	existing, err := s.getByCorrelationID(ctx, correlationID)
	if err != nil {
		return IssueResult{}, err
	}
	if existing != nil {
		slog.Info("Payment request already bound to an order",
			"correlation_id", correlationID,
			"order_id", existing.ID,
		)

		return IssueResult{}, &payment.DuplicateRequestError{CorrelationID: correlationID}
	}

	ref, err := s.createIntent(ctx, req, correlationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway call failed")
		slog.Error("Failed to open payment intent", "correlation_id", correlationID, "error", err)

		return IssueResult{}, err
	}

	now := s.clock.Now()
	o := order.Order{
		ID:               uuid.NewString(),
		CorrelationID:    correlationID,
		IntentID:         ref.IntentID,
		AmountMinorUnits: req.TotalMinorUnits,
		Currency:         req.Currency,
		Status:           order.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.create(ctx, o)
	if err != nil {
		// The gateway call carried the correlation id as its idempotency key, so
		// a concurrent winner holds the same intent and nothing is orphaned.
		if errors.Is(err, payment.ErrDuplicateRequest) {
			return IssueResult{}, &payment.DuplicateRequestError{CorrelationID: correlationID}
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "order not persisted after intent creation")
		s.reportOrphan(ctx, o, err)

		return IssueResult{}, &payment.InconsistencyError{
			IntentID:      ref.IntentID,
			CorrelationID: correlationID,
			Err:           err,
		}
	}

	slog.Info("Payment intent opened",
		"order_id", created.ID,
		"intent_id", created.IntentID,
		"correlation_id", correlationID,
		"amount", created.AmountMinorUnits,
		"currency", created.Currency.String(),
	)

	return IssueResult{Order: created, ClientSecret: ref.ClientSecret}, nil
}

func (s *Issuer) getByCorrelationID(ctx context.Context, correlationID string) (*order.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	existing, err := s.orders.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("check correlation id: %w", err)
	}

	return existing, nil
}

func (s *Issuer) createIntent(
	ctx context.Context,
	req cart.PricedOrderRequest,
	correlationID string,
) (payment.IntentRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	ref, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountMinorUnits: req.TotalMinorUnits,
		Currency:         req.Currency,
		CorrelationID:    correlationID,
		Metadata:         intentMetadata(req, correlationID),
	})
	if err != nil {
		var gwErr *payment.PaymentGatewayError
		if errors.As(err, &gwErr) {
			return payment.IntentRef{}, err
		}

		return payment.IntentRef{}, &payment.PaymentGatewayError{Err: err}
	}
	if ref.IntentID == "" {
		return payment.IntentRef{}, &payment.PaymentGatewayError{Err: errors.New("gateway returned an empty intent id")}
	}
	ref.CorrelationID = correlationID

	return ref, nil
}

func (s *Issuer) create(ctx context.Context, o order.Order) (order.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.orders.Create(ctx, o)
}

func (s *Issuer) reportOrphan(ctx context.Context, o order.Order, cause error) {
	orphan := payment.OrphanedIntent{
		IntentID:         o.IntentID,
		CorrelationID:    o.CorrelationID,
		AmountMinorUnits: o.AmountMinorUnits,
		Currency:         o.Currency,
		Error:            cause.Error(),
		DetectedAt:       s.clock.Now(),
	}

	slog.Error("Payment intent opened but order was not persisted",
		"intent_id", orphan.IntentID,
		"correlation_id", orphan.CorrelationID,
		"amount", orphan.AmountMinorUnits,
		"error", cause,
	)

	if s.reporter == nil {
		return
	}
	// The request context may already be expired; the report must still go out.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.reporter.ReportOrphanedIntent(reportCtx, orphan); err != nil {
		slog.Error("Failed to report orphaned payment intent",
			"intent_id", orphan.IntentID,
			"correlation_id", orphan.CorrelationID,
			"error", err,
		)
	}
}

// intentMetadata builds the opaque metadata stored on the gateway intent so an
// intent can be traced back to its cart without the local store.
func intentMetadata(req cart.PricedOrderRequest, correlationID string) map[string]string {
	lines := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, item.ListingID+"x"+strconv.Itoa(item.Quantity))
	}
	summary := strings.Join(lines, ",")
	if len(summary) > maxMetadataValueLen {
		summary = summary[:maxMetadataValueLen-3] + "..."
	}

	return map[string]string{
		"correlation_id": correlationID,
		"line_items":     summary,
		"item_count":     strconv.Itoa(len(req.Items)),
	}
}
