package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var ErrListingNotFound = errors.New("listing not found")

// ListingRepository reads the catalog items chats are about.
type ListingRepository interface {
	Get(ctx context.Context, listingID int) (models.Listing, error)
	BulkByIDs(ctx context.Context, ids []int) (map[int]models.Listing, error)
}

// ListingRepo is a sqlx implementation of ListingRepository.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo constructs a ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

// Get fetches a listing by id.
func (r *ListingRepo) Get(ctx context.Context, listingID int) (models.Listing, error) {
	var listing models.Listing
	err := r.db.GetContext(ctx, &listing,
		`SELECT id, owner_id, title, photo FROM listings WHERE id=$1`, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, ErrListingNotFound
	}
	return listing, err
}

// BulkByIDs fetches multiple listings keyed by id.
func (r *ListingRepo) BulkByIDs(ctx context.Context, ids []int) (map[int]models.Listing, error) {
	listings := map[int]models.Listing{}
	if len(ids) == 0 {
		return listings, nil
	}

	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, owner_id, title, photo FROM listings WHERE id = ANY($1)`,
		pq.Int64Array(id64s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var listing models.Listing
		if err := rows.StructScan(&listing); err != nil {
			return nil, err
		}
		listings[listing.ID] = listing
	}
	return listings, rows.Err()
}
