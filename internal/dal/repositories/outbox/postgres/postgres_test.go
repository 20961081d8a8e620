package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/payment/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewOutboxRepository(pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	msg := outbox.OutboxMessage{
		ExchangeName: "payments",
		RoutingKey:   "orders.status_changed",
		Payload:      []byte(`{"orderId":"o-1"}`),
		ContentType:  "application/json",
		MaxRetries:   3,
		CreatedAt:    now,
		UpdatedAt:    now,
		NextRetryAt:  now,
	}
	require.NoError(t, repo.Insert(ctx, msg))

	due, err := repo.GetDueMessages(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, msg.Payload, due[0].Payload)
	assert.Equal(t, "orders.status_changed", due[0].RoutingKey)

	require.NoError(t, repo.ScheduleRetry(ctx, due[0].ID, 1, "broker down", now.Add(time.Minute)))

	due, err = repo.GetDueMessages(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.GetDueMessages(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.Equal(t, "broker down", due[0].LastError)

	require.NoError(t, repo.ScheduleRetry(ctx, due[0].ID, 3, "still down", now))
	due, err = repo.GetDueMessages(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "messages past max_retries are parked")

	require.NoError(t, repo.Delete(ctx, 999))
}
