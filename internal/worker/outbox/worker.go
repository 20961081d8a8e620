package outbox

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/corray333/backend-labs/payment/internal/clock"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultBatchSize     = 100
	defaultRetryInterval = 30 * time.Second
	maxBackoff           = 6 * time.Hour
)

// Publisher delivers an outbox message to the broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, contentType string, body []byte) error
}

// Config tunes the polling loop.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	RetryInterval time.Duration
}

// Worker processes messages from the outbox table.
type Worker struct {
	outboxRepo    ioutboxrepo.IOutboxRepository
	publisher     Publisher
	clock         clock.Clock
	pollInterval  time.Duration
	batchSize     int
	retryInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new outbox worker.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	publisher Publisher,
	cfg Config,
	clk clock.Clock,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Worker{
		outboxRepo:    outboxRepo,
		publisher:     publisher,
		clock:         clk,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		retryInterval: cfg.RetryInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins processing messages from the outbox. It blocks until ctx is
// done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// backoff returns the delay before attempt retryCount: retryInterval * 2^retryCount.
func (w *Worker) backoff(retryCount int) time.Duration {
	d := math.Pow(2, float64(retryCount)) * float64(w.retryInterval)
	if d > float64(maxBackoff) {
		return maxBackoff
	}

	return time.Duration(d)
}

// processMessages retrieves and processes due messages from the outbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetDueMessages(ctx, w.clock.Now(), w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}

		err := w.publisher.Publish(ctx, msg.ExchangeName, msg.RoutingKey, msg.ContentType, msg.Payload)
		if err != nil {
			newRetryCount := msg.RetryCount + 1
			nextRetryAt := w.clock.Now().Add(w.backoff(newRetryCount))

			if newRetryCount >= msg.MaxRetries {
				slog.Error("Outbox message exhausted its retries",
					"outbox_id", msg.ID,
					"routing_key", msg.RoutingKey,
					"retry_count", newRetryCount,
					"error", err,
				)
			} else {
				slog.Warn("Failed to publish message from outbox, will retry",
					"outbox_id", msg.ID,
					"retry_count", newRetryCount,
					"next_retry", nextRetryAt,
					"error", err,
				)
			}

			if err := w.outboxRepo.ScheduleRetry(ctx, msg.ID, newRetryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
			}

			continue
		}

		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)

			continue
		}

		slog.Debug("Message published and removed from outbox", "outbox_id", msg.ID)
	}
}
