package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
)

const alertContentType = "application/json"

// Publisher is the part of the RabbitMQ client the reporter needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, contentType string, body []byte) error
}

// orphanedIntentAlert is the message body consumers of the alert queue read.
type orphanedIntentAlert struct {
	Type             string    `json:"type"`
	IntentID         string    `json:"intentId"`
	CorrelationID    string    `json:"correlationId"`
	AmountMinorUnits int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Error            string    `json:"error"`
	DetectedAt       time.Time `json:"detectedAt"`
}

// InconsistencyRabbitMQRepository publishes orphaned intents to an alert queue.
type InconsistencyRabbitMQRepository struct {
	publisher Publisher
	queue     string
	timeout   time.Duration
}

// NewInconsistencyRabbitMQRepository creates a reporter publishing to queue
// through the default exchange.
func NewInconsistencyRabbitMQRepository(publisher Publisher, queue string) *InconsistencyRabbitMQRepository {
	return &InconsistencyRabbitMQRepository{
		publisher: publisher,
		queue:     queue,
		timeout:   5 * time.Second,
	}
}

// ReportOrphanedIntent publishes the orphan to the alert queue. It runs even
// when the caller's context is already done.
func (r *InconsistencyRabbitMQRepository) ReportOrphanedIntent(ctx context.Context, orphan payment.OrphanedIntent) error {
	body, err := json.Marshal(orphanedIntentAlert{
		Type:             "payment.orphaned_intent",
		IntentID:         orphan.IntentID,
		CorrelationID:    orphan.CorrelationID,
		AmountMinorUnits: orphan.AmountMinorUnits,
		Currency:         orphan.Currency.String(),
		Error:            orphan.Error,
		DetectedAt:       orphan.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal orphaned intent alert: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.publisher.Publish(pubCtx, "", r.queue, alertContentType, body); err != nil {
		return fmt.Errorf("publish orphaned intent alert: %w", err)
	}

	return nil
}
