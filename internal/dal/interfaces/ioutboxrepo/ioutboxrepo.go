package ioutboxrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
)

// IOutboxRepository stores order events until the outbox worker publishes them.
type IOutboxRepository interface {
	// Insert stages a message; inside a unit of work it commits with the state change.
	Insert(ctx context.Context, msg outbox.OutboxMessage) error

	// GetDueMessages returns up to limit messages whose next attempt is at or before now.
	GetDueMessages(ctx context.Context, now time.Time, limit int) ([]outbox.OutboxMessage, error)

	// Delete drops a published message.
	Delete(ctx context.Context, id int64) error

	// ScheduleRetry records a failed publish and when to try again.
	ScheduleRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
}
