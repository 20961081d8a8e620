package outbox

import (
	"time"
)

// OutboxMessage is a message written in the same transaction as the state
// change it describes and published to RabbitMQ later.
type OutboxMessage struct {
	ID           int64
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}
