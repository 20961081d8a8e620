package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"go.opentelemetry.io/otel"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrInvalidQuery = errors.New("invalid order query")

// OrderService answers order lookups for clients and support tooling.
type OrderService struct {
	orders iorderrepo.IOrderRepository
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orders == nil {
		panic("ordersvc: order repository is required")
	}

	return s
}

// WithOrderRepository sets the order repository.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(r iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.orders = r
	}
}

// GetOrder returns the order with id or payment.ErrOrderNotFound.
func (s *OrderService) GetOrder(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrder")
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return order.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidQuery)
	}

	return s.orders.GetByID(ctx, id)
}

// ListOrders returns orders matching filter, newest first. A zero limit
// means DefaultListLimit.
func (s *OrderService) ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.ListOrders")
	defer span.End()

	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidQuery)
	}
	if filter.Limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must not exceed %d", ErrInvalidQuery, MaxListLimit)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Status != "" {
		if _, err := order.ParseStatus(filter.Status.String()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
	}

	return s.orders.Query(ctx, &filter)
}
