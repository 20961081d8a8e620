package reconcilesvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/payment/internal/clock"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/corray333/backend-labs/payment/internal/service/services/eventauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_reconcile"

var now = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func pendingOrder(id, intentID string) order.Order {
	return order.Order{
		ID:               id,
		CorrelationID:    "corr-" + id,
		IntentID:         intentID,
		AmountMinorUnits: 6050,
		Currency:         currency.CurrencyUSD,
		Status:           order.StatusPending,
		CreatedAt:        now.Add(-time.Minute),
		UpdatedAt:        now.Add(-time.Minute),
	}
}

func newReconciler(store *memStore) *Reconciler {
	return MustNewReconciler(
		WithUnitOfWork(func() UnitOfWork { return &fakeUOW{store: store} }),
		WithAuthenticator(eventauth.NewAuthenticator(webhookSecret, 5*time.Minute)),
		WithClock(clock.NewFixed(now)),
		WithStatusEvents("payments", "orders.status_changed", 5),
	)
}

func signedDelivery(t *testing.T, eventType, intentID string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_%s","type":%q,"data":{"object":{"id":%q,"object":"payment_intent"}}}`,
		intentID, eventType, intentID,
	))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = fmt.Fprintf(mac, "%d.", ts)
	_, _ = mac.Write(payload)

	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestReconciler_HandleInboundEvent(t *testing.T) {
	t.Parallel()

	t.Run("succeeded event marks order paid and stages one status event", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-1", "pi_1"))
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "pi_1")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeApplied, outcome)

		got := store.get("o-1")
		assert.Equal(t, order.StatusPaid, got.Status)
		assert.Equal(t, now, got.UpdatedAt)

		require.Len(t, store.outbox, 1)
		msg := store.outbox[0]
		assert.Equal(t, "payments", msg.ExchangeName)
		assert.Equal(t, "orders.status_changed", msg.RoutingKey)
		assert.Equal(t, 5, msg.MaxRetries)

		var ev order.StatusChanged
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, order.StatusPending, ev.From)
		assert.Equal(t, order.StatusPaid, ev.To)
		assert.Equal(t, "o-1", ev.OrderID)
		assert.Equal(t, "pi_1", ev.IntentID)
	})

	t.Run("failed event cancels order", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-2", "pi_2"))
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentFailed, "pi_2")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeApplied, outcome)
		assert.Equal(t, order.StatusCancelled, store.get("o-2").Status)
	})

	t.Run("redelivery is idempotent", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-3", "pi_3"))
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "pi_3")
		for i := 0; i < 5; i++ {
			outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
			require.NoError(t, err)
			if i == 0 {
				assert.Equal(t, payment.OutcomeApplied, outcome)
			} else {
				assert.Equal(t, payment.OutcomeNoop, outcome)
			}
		}

		assert.Equal(t, order.StatusPaid, store.get("o-3").Status)
		assert.Equal(t, 1, store.applied)
		assert.Len(t, store.outbox, 1)
	})

	t.Run("late failure does not regress a paid order", func(t *testing.T) {
		paid := pendingOrder("o-4", "pi_4")
		paid.Status = order.StatusPaid
		store := newMemStore(paid)
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentFailed, "pi_4")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeNoop, outcome)
		assert.Equal(t, order.StatusPaid, store.get("o-4").Status)
		assert.Zero(t, store.casCalls)
		assert.Empty(t, store.outbox)
	})

	t.Run("unknown intent is acknowledged", func(t *testing.T) {
		store := newMemStore()
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "pi_unknown")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeNotFound, outcome)
	})

	t.Run("unknown event type is ignored without store access", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-5", "pi_5"))
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, "payment_intent.processing", "pi_5")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeIgnored, outcome)
		assert.Zero(t, store.lookups)
		assert.Equal(t, order.StatusPending, store.get("o-5").Status)
	})

	t.Run("authenticated event without intent id is acknowledged", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-10", "pi_10"))
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "")
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeIgnored, outcome)
		assert.Zero(t, store.lookups)
		assert.Equal(t, order.StatusPending, store.get("o-10").Status)
	})

	t.Run("tampered payload never touches orders", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-6", "pi_6"))
		svc := newReconciler(store)

		_, sig := signedDelivery(t, eventauth.TypeIntentFailed, "pi_6")
		forged := []byte(`{"id":"evt_x","type":"payment_intent.succeeded","data":{"object":{"id":"pi_6"}}}`)

		_, err := svc.HandleInboundEvent(context.Background(), forged, sig)
		require.ErrorIs(t, err, payment.ErrSignatureVerification)
		assert.Zero(t, store.lookups)
		assert.Zero(t, store.casCalls)
		assert.Equal(t, order.StatusPending, store.get("o-6").Status)
	})

	t.Run("store failure is surfaced for redelivery", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-7", "pi_7"))
		store.casErr = payment.ErrStoreUnavailable
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "pi_7")
		_, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.ErrorIs(t, err, payment.ErrStoreUnavailable)
		assert.Equal(t, order.StatusPending, store.get("o-7").Status)
		assert.Empty(t, store.outbox)

		store.casErr = nil
		outcome, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeApplied, outcome)
		assert.Equal(t, order.StatusPaid, store.get("o-7").Status)
	})

	t.Run("outbox failure rolls back the transition", func(t *testing.T) {
		store := newMemStore(pendingOrder("o-8", "pi_8"))
		store.outboxErr = errors.New("disk full")
		svc := newReconciler(store)

		payload, sig := signedDelivery(t, eventauth.TypeIntentSucceeded, "pi_8")
		_, err := svc.HandleInboundEvent(context.Background(), payload, sig)
		require.Error(t, err)
		assert.Equal(t, order.StatusPending, store.get("o-8").Status)
		assert.Empty(t, store.outbox)
	})
}

func TestReconciler_ConcurrentTerminalEvents(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newMemStore(pendingOrder("o-race", "pi_race"))
		svc := newReconciler(store)

		events := []payment.InboundEvent{
			{ID: "evt_ok", Type: payment.EventSucceeded, IntentID: "pi_race"},
			{ID: "evt_fail", Type: payment.EventFailed, IntentID: "pi_race"},
			{ID: "evt_ok_dup", Type: payment.EventSucceeded, IntentID: "pi_race"},
		}

		start := make(chan struct{})
		outcomes := make([]payment.Outcome, len(events))
		var wg sync.WaitGroup
		for j, ev := range events {
			wg.Add(1)
			go func(j int, ev payment.InboundEvent) {
				defer wg.Done()
				<-start
				var err error
				outcomes[j], err = svc.Apply(context.Background(), ev)
				assert.NoError(t, err)
			}(j, ev)
		}
		close(start)
		wg.Wait()

		final := store.get("o-race").Status
		require.True(t, final.IsTerminal(), "order left %s", final)

		applied := 0
		for _, o := range outcomes {
			if o == payment.OutcomeApplied {
				applied++
			}
		}
		assert.Equal(t, 1, applied)
		assert.Equal(t, 1, store.applied)
		require.Len(t, store.outbox, 1)

		var ev order.StatusChanged
		require.NoError(t, json.Unmarshal(store.outbox[0].Payload, &ev))
		assert.Equal(t, final, ev.To)
	}
}

func TestReconciler_WithoutAuthenticatorRejects(t *testing.T) {
	store := newMemStore(pendingOrder("o-9", "pi_9"))
	svc := MustNewReconciler(WithUnitOfWork(func() UnitOfWork { return &fakeUOW{store: store} }))

	_, err := svc.HandleInboundEvent(context.Background(), []byte(`{}`), "")
	require.ErrorIs(t, err, payment.ErrSignatureVerification)
	assert.Zero(t, store.lookups)
}

// memStore is an in-memory order table whose compare-and-set is atomic.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]order.Order
	outbox    []outbox.OutboxMessage
	applied   int
	casCalls  int
	lookups   int
	casErr    error
	outboxErr error
}

func newMemStore(orders ...order.Order) *memStore {
	s := &memStore{orders: make(map[string]order.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) get(id string) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

type fakeUOW struct {
	store  *memStore
	staged []outbox.OutboxMessage
	undo   []order.Order
	done   bool
}

func (u *fakeUOW) Begin(context.Context) error {
	return nil
}

func (u *fakeUOW) Commit(context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.outbox = append(u.store.outbox, u.staged...)
	u.done = true

	return nil
}

func (u *fakeUOW) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, prev := range u.undo {
		u.store.orders[prev.ID] = prev
		u.store.applied--
	}
	u.staged = nil
	u.undo = nil
	u.done = true

	return nil
}

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository {
	return &fakeOrderRepo{uow: u}
}

func (u *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return &fakeOutboxRepo{uow: u}
}

type fakeOrderRepo struct {
	uow *fakeUOW
}

func (r *fakeOrderRepo) Create(_ context.Context, o order.Order) (order.Order, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o

	return o, nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (order.Order, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, payment.ErrOrderNotFound
	}

	return o, nil
}

func (r *fakeOrderRepo) GetByCorrelationID(_ context.Context, correlationID string) (*order.Order, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	for _, o := range s.orders {
		if o.CorrelationID == correlationID {
			return &o, nil
		}
	}

	return nil, nil
}

func (r *fakeOrderRepo) GetByIntentID(_ context.Context, intentID string) (order.Order, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	for _, o := range s.orders {
		if o.IntentID == intentID {
			return o, nil
		}
	}

	return order.Order{}, payment.ErrOrderNotFound
}

func (r *fakeOrderRepo) CompareAndSetStatus(
	_ context.Context,
	id string,
	expected order.Status,
	next order.Status,
	at time.Time,
) (bool, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	if s.casErr != nil {
		return false, s.casErr
	}
	o, ok := s.orders[id]
	if !ok || o.Status != expected {
		return false, nil
	}
	r.uow.undo = append(r.uow.undo, o)
	o.Status = next
	o.UpdatedAt = at
	s.orders[id] = o
	s.applied++

	return true, nil
}

func (r *fakeOrderRepo) Query(context.Context, *order.QueryOrdersModel) ([]order.Order, error) {
	return nil, errors.New("not implemented")
}

type fakeOutboxRepo struct {
	uow *fakeUOW
}

func (r *fakeOutboxRepo) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	if err := r.uow.store.outboxErr; err != nil {
		return err
	}
	r.uow.staged = append(r.uow.staged, msg)

	return nil
}

func (r *fakeOutboxRepo) GetDueMessages(context.Context, time.Time, int) ([]outbox.OutboxMessage, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) Delete(context.Context, int64) error {
	return nil
}

func (r *fakeOutboxRepo) ScheduleRetry(context.Context, int64, int, string, time.Time) error {
	return nil
}
