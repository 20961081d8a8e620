package ilistingrepo

import (
	"context"

	"github.com/corray333/backend-labs/payment/internal/service/models/listing"
)

// IListingRepository reads authoritative listing prices.
type IListingRepository interface {
	// GetListings returns the listings found among ids, keyed by id.
	GetListings(ctx context.Context, ids []string) (map[string]listing.Listing, error)
}
