package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/jackc/pgx/v5"
)

const (
	ordersTable               = "orders"
	orderColumnsSelectionSize = 8
)

var orderColumns = []string{
	"id",
	"correlation_id",
	"intent_id",
	"amount_minor_units",
	"currency",
	"status",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model
type OrderDal struct {
	ID               string
	CorrelationID    string
	IntentID         string
	AmountMinorUnits int64
	Currency         string
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ToModel converts OrderDal to service layer Order model
func (o *OrderDal) ToModel() (order.Order, error) {
	cur, err := currency.ParseCurrency(o.Currency)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}

	return order.Order{
		ID:               o.ID,
		CorrelationID:    o.CorrelationID,
		IntentID:         o.IntentID,
		AmountMinorUnits: o.AmountMinorUnits,
		Currency:         cur,
		Status:           status,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}, nil
}

func (o *OrderDal) scanTargets() []any {
	targets := make([]any, 0, orderColumnsSelectionSize)

	return append(targets,
		&o.ID,
		&o.CorrelationID,
		&o.IntentID,
		&o.AmountMinorUnits,
		&o.Currency,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

// PostgresOrderRepository stores orders in Postgres.
type PostgresOrderRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a repository on a pool or a transaction.
func NewPostgresOrderRepository(conn postgres.GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a new order. A taken correlation id or intent id fails with
// payment.DuplicateRequestError.
func (r *PostgresOrderRepository) Create(ctx context.Context, o order.Order) (order.Order, error) {
	query, args, err := r.sb.Insert(ordersTable).
		Columns(orderColumns...).
		Values(
			o.ID,
			o.CorrelationID,
			o.IntentID,
			o.AmountMinorUnits,
			o.Currency.String(),
			o.Status.String(),
			o.CreatedAt,
			o.UpdatedAt,
		).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return order.Order{}, &payment.DuplicateRequestError{CorrelationID: o.CorrelationID}
		}

		return order.Order{}, storeError("insert order", err)
	}

	return dal.ToModel()
}

// GetByID returns payment.ErrOrderNotFound when absent.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (order.Order, error) {
	o, err := r.getOne(ctx, sq.Eq{"id": id})
	if err != nil {
		return order.Order{}, err
	}
	if o == nil {
		return order.Order{}, payment.ErrOrderNotFound
	}

	return *o, nil
}

// GetByCorrelationID returns nil when absent.
func (r *PostgresOrderRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*order.Order, error) {
	return r.getOne(ctx, sq.Eq{"correlation_id": correlationID})
}

// GetByIntentID returns payment.ErrOrderNotFound when absent.
func (r *PostgresOrderRepository) GetByIntentID(ctx context.Context, intentID string) (order.Order, error) {
	o, err := r.getOne(ctx, sq.Eq{"intent_id": intentID})
	if err != nil {
		return order.Order{}, err
	}
	if o == nil {
		return order.Order{}, payment.ErrOrderNotFound
	}

	return *o, nil
}

// CompareAndSetStatus updates the status only while it still equals expected.
func (r *PostgresOrderRepository) CompareAndSetStatus(
	ctx context.Context,
	id string,
	expected order.Status,
	next order.Status,
	at time.Time,
) (bool, error) {
	query, args, err := r.sb.Update(ordersTable).
		Set("status", next.String()).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": expected.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, storeError("update order status", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Query returns orders matching the filter, newest first.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	qb := r.sb.Select(orderColumns...).From(ordersTable)

	if filter != nil {
		if len(filter.IDs) > 0 {
			qb = qb.Where(sq.Eq{"id": filter.IDs})
		}
		if filter.CorrelationID != "" {
			qb = qb.Where(sq.Eq{"correlation_id": filter.CorrelationID})
		}
		if filter.IntentID != "" {
			qb = qb.Where(sq.Eq{"intent_id": filter.IntentID})
		}
		if filter.Status != "" {
			qb = qb.Where(sq.Eq{"status": filter.Status.String()})
		}
		if filter.Limit > 0 {
			qb = qb.Limit(uint64(filter.Limit))
		}
		if filter.Offset > 0 {
			qb = qb.Offset(uint64(filter.Offset))
		}
	}

	query, args, err := qb.OrderBy("created_at DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("query orders", err)
	}
	defer rows.Close()

	result := make([]order.Order, 0)
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, storeError("scan order", err)
		}
		o, err := dal.ToModel()
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate orders", err)
	}

	return result, nil
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, where sq.Sqlizer) (*order.Order, error) {
	query, args, err := r.sb.Select(orderColumns...).
		From(ordersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, storeError("select order", err)
	}

	o, err := dal.ToModel()
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, payment.ErrStoreUnavailable, err)
}
