package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/listing"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/shopspring/decimal"
)

// ListingRepository reads listing prices from Postgres.
type ListingRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(conn postgres.GenericConn) *ListingRepository {
	return &ListingRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetListings returns the listings found for ids keyed by id. Missing ids
// are absent from the map.
func (r *ListingRepository) GetListings(ctx context.Context, ids []string) (map[string]listing.Listing, error) {
	result := make(map[string]listing.Listing, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	// price is read as text so no precision is lost on the way to decimal.
	query, args, err := r.sb.Select("id", "title", "price::text", "active").
		From("listings").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w: %w", payment.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l     listing.Listing
			price string
		)
		if err := rows.Scan(&l.ID, &l.Title, &price, &l.Active); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("listing %s has invalid price %q: %w", l.ID, price, err)
		}
		result[l.ID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return result, nil
}
