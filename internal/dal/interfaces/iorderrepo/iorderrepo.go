package iorderrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
)

// IOrderRepository is an interface for order postgres repository.
type IOrderRepository interface {
	// Create inserts a new order; a taken correlation id or intent id fails
	// with payment.DuplicateRequestError.
	Create(ctx context.Context, o order.Order) (order.Order, error)

	// GetByID returns payment.ErrOrderNotFound when absent.
	GetByID(ctx context.Context, id string) (order.Order, error)

	// GetByCorrelationID returns nil when absent.
	GetByCorrelationID(ctx context.Context, correlationID string) (*order.Order, error)

	// GetByIntentID returns payment.ErrOrderNotFound when absent.
	GetByIntentID(ctx context.Context, intentID string) (order.Order, error)

	// CompareAndSetStatus sets the status to next only if it is currently
	// expected, in a single conditional write. It reports whether it applied.
	CompareAndSetStatus(
		ctx context.Context,
		id string,
		expected order.Status,
		next order.Status,
		at time.Time,
	) (bool, error)

	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}
