package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testDBLockID int64 = 720451093

// NewTestPool connects to TEST_DATABASE_URL, applies migrations and holds an
// advisory lock so packages do not truncate each other's rows. The test is
// skipped when the variable is unset or the database is unreachable.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	lockTestDB(t, pool)

	if err := postgres.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return pool
}

// TruncateAll empties every table the service owns.
func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE orders, listings, outbox RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertListing adds a listing row with a numeric price given as text.
func InsertListing(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id, title, price string, active bool) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO listings (id, title, price, active) VALUES ($1, $2, $3::numeric, $4)`,
		id, title, price, active,
	)
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
