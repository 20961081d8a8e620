package uow

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	orderrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/outbox/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UnitOfWork hands out repositories bound to the pool until Begin, and to
// the open transaction after it.
type UnitOfWork struct {
	pool       *pgxpool.Pool
	tx         pgx.Tx
	orderRepo  iorderrepo.IOrderRepository
	outboxRepo ioutboxrepo.IOutboxRepository
}

// OrderRepository returns the order repository for the current scope.
func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

// OutboxRepository returns the outbox repository for the current scope.
func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

// NewUnitOfWork creates a unit of work on the client's pool.
func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return &UnitOfWork{
		pool:       client.Pool(),
		orderRepo:  orderrepo.NewPostgresOrderRepository(client.Pool()),
		outboxRepo: outboxrepo.NewOutboxRepository(client.Pool()),
	}
}

// Begin opens a transaction and rebinds the repositories to it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errors.New("transaction already started")
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Join(payment.ErrStoreUnavailable, err)
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.outboxRepo = outboxrepo.NewOutboxRepository(tx)

	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Commit(ctx); err != nil {
		return errors.Join(payment.ErrStoreUnavailable, err)
	}

	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}
