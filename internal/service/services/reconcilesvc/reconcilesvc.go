package reconcilesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/payment/internal/clock"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultStoreTimeout     = 5 * time.Second
	defaultOutboxMaxRetries = 10
	defaultStatusRoutingKey = "orders.status_changed"
	statusEventContentType  = "application/json"
)

// UnitOfWork groups the repositories a transition writes to. Repositories
// obtained before Begin run outside the transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// Authenticator verifies raw gateway deliveries.
type Authenticator interface {
	Authenticate(payload []byte, sigHeader string) (payment.InboundEvent, error)
}

// Reconciler applies authenticated payment events to orders.
type Reconciler struct {
	newUOW        func() UnitOfWork
	authenticator Authenticator
	clock         clock.Clock
	storeTimeout  time.Duration
	exchange      string
	routingKey    string
	maxRetries    int
}

// option is a function that configures the Reconciler.
type option func(*Reconciler)

// MustNewReconciler creates a new Reconciler. It panics without a unit of work factory.
func MustNewReconciler(opts ...option) *Reconciler {
	r := &Reconciler{
		clock:        clock.NewSystem(),
		storeTimeout: defaultStoreTimeout,
		routingKey:   defaultStatusRoutingKey,
		maxRetries:   defaultOutboxMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.newUOW == nil {
		panic("reconcilesvc: unit of work factory is required")
	}

	return r
}

// WithUnitOfWork sets the factory for per-event units of work.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWork(newUOW func() UnitOfWork) option {
	return func(r *Reconciler) {
		r.newUOW = newUOW
	}
}

// WithAuthenticator sets the verifier used by HandleInboundEvent.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuthenticator(a Authenticator) option {
	return func(r *Reconciler) {
		r.authenticator = a
	}
}

// WithClock sets the clock used for updated_at and event timestamps.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(c clock.Clock) option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithStoreTimeout bounds the store work done for one event.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStoreTimeout(d time.Duration) option {
	return func(r *Reconciler) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// WithStatusEvents sets where status change messages are routed.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStatusEvents(exchange, routingKey string, maxRetries int) option {
	return func(r *Reconciler) {
		r.exchange = exchange
		if routingKey != "" {
			r.routingKey = routingKey
		}
		if maxRetries > 0 {
			r.maxRetries = maxRetries
		}
	}
}

// HandleInboundEvent authenticates a raw delivery and reconciles it.
//
// A nil error means the delivery must be acknowledged, whatever the outcome.
// Authenticated payloads that cannot be read are acknowledged as ignored.
// A SignatureVerificationError means the payload was never parsed and no
// order was read or written. Any other error is transient and the gateway
// should redeliver.
func (r *Reconciler) HandleInboundEvent(ctx context.Context, payload []byte, sigHeader string) (payment.Outcome, error) {
	if r.authenticator == nil {
		return "", &payment.SignatureVerificationError{Err: errors.New("no authenticator configured")}
	}

	ev, err := r.authenticator.Authenticate(payload, sigHeader)
	if errors.Is(err, payment.ErrMalformedEvent) {
		// Redelivering the same signed bytes cannot succeed.
		slog.Error("Unreadable authenticated payment event, acknowledging", "error", err)

		return payment.OutcomeIgnored, nil
	}
	if err != nil {
		slog.Warn("Rejected payment event with invalid signature", "error", err)

		return "", err
	}

	return r.Apply(ctx, ev)
}

// Apply moves the order bound to ev.IntentID from pending to paid or
// cancelled. Orders already in a terminal status are left untouched, which
// makes redelivery safe. Unknown intents are acknowledged as not found.
func (r *Reconciler) Apply(ctx context.Context, ev payment.InboundEvent) (payment.Outcome, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Reconciler.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", ev.ID),
		attribute.String("event_type", ev.RawType),
		attribute.String("intent_id", ev.IntentID),
	)

	target, ok := targetStatus(ev.Type)
	if !ok {
		slog.Info("Ignoring payment event", "event_id", ev.ID, "event_type", ev.RawType)

		return payment.OutcomeIgnored, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	work := r.newUOW()

	current, err := work.OrderRepository().GetByIntentID(ctx, ev.IntentID)
	if errors.Is(err, payment.ErrOrderNotFound) {
		slog.Warn("No order for payment intent, acknowledging",
			"event_id", ev.ID,
			"intent_id", ev.IntentID,
			"event_type", ev.RawType,
		)

		return payment.OutcomeNotFound, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order lookup failed")

		return "", fmt.Errorf("get order by intent %s: %w", ev.IntentID, err)
	}

	if !order.CanTransition(current.Status, target) {
		slog.Info("Order already settled, skipping payment event",
			"order_id", current.ID,
			"intent_id", ev.IntentID,
			"status", current.Status.String(),
			"event_type", ev.RawType,
		)

		return payment.OutcomeNoop, nil
	}

	applied, err := r.transition(ctx, work, current, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status transition failed")

		return "", err
	}
	if !applied {
		slog.Info("Order settled concurrently, skipping payment event",
			"order_id", current.ID,
			"intent_id", ev.IntentID,
			"event_type", ev.RawType,
		)

		return payment.OutcomeNoop, nil
	}

	slog.Info("Order status updated",
		"order_id", current.ID,
		"intent_id", ev.IntentID,
		"from", current.Status.String(),
		"to", target.String(),
	)

	return payment.OutcomeApplied, nil
}

// transition performs the conditional status write and stages the status
// event in one transaction. The event is staged only when the write applied.
func (r *Reconciler) transition(
	ctx context.Context,
	work UnitOfWork,
	current order.Order,
	target order.Status,
) (bool, error) {
	if err := work.Begin(ctx); err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = work.Rollback(context.WithoutCancel(ctx))
	}()

	now := r.clock.Now()
	applied, err := work.OrderRepository().CompareAndSetStatus(ctx, current.ID, order.StatusPending, target, now)
	if err != nil {
		return false, fmt.Errorf("update order %s status: %w", current.ID, err)
	}
	if !applied {
		return false, nil
	}

	msg, err := r.statusChangedMessage(current, target, now)
	if err != nil {
		return false, err
	}
	if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
		return false, fmt.Errorf("stage status event for order %s: %w", current.ID, err)
	}

	if err := work.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}

	return true, nil
}

func (r *Reconciler) statusChangedMessage(
	current order.Order,
	target order.Status,
	at time.Time,
) (outbox.OutboxMessage, error) {
	body, err := json.Marshal(order.StatusChanged{
		Type:             order.StatusChangedEventType,
		OrderID:          current.ID,
		IntentID:         current.IntentID,
		CorrelationID:    current.CorrelationID,
		From:             current.Status,
		To:               target,
		AmountMinorUnits: current.AmountMinorUnits,
		Currency:         current.Currency,
		OccurredAt:       at,
	})
	if err != nil {
		return outbox.OutboxMessage{}, fmt.Errorf("marshal status event: %w", err)
	}

	return outbox.OutboxMessage{
		ExchangeName: r.exchange,
		RoutingKey:   r.routingKey,
		Payload:      body,
		ContentType:  statusEventContentType,
		MaxRetries:   r.maxRetries,
		CreatedAt:    at,
		UpdatedAt:    at,
		NextRetryAt:  at,
	}, nil
}

func targetStatus(t payment.EventType) (order.Status, bool) {
	switch t {
	case payment.EventSucceeded:
		return order.StatusPaid, true
	case payment.EventFailed:
		return order.StatusCancelled, true
	default:
		return "", false
	}
}
