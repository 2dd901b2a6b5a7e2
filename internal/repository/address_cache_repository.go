package repository

import (
	"context"
	"time"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"
)

// addressCacheRepository implements AddressCacheRepository interface
type addressCacheRepository struct {
	db db.DBTX
}

// NewAddressCacheRepository creates a new geocoder cache repository
func NewAddressCacheRepository(exec db.DBTX) AddressCacheRepository {
	return &addressCacheRepository{db: exec}
}

// Get returns the cached response for a normalized query
func (r *addressCacheRepository) Get(ctx context.Context, query string) (domain.AddressCacheEntry, error) {
	var (
		entry    domain.AddressCacheEntry
		response []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT query, place_id, response, created_at FROM address_cache WHERE query = $1`,
		query,
	).Scan(&entry.Query, &entry.PlaceID, &response, &entry.CreatedAt)
	if err != nil {
		return domain.AddressCacheEntry{}, translateError("get cached address", err)
	}
	entry.Response = response
	return entry, nil
}

// Put stores or refreshes a cached response
func (r *addressCacheRepository) Put(ctx context.Context, entry domain.AddressCacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO address_cache (query, place_id, response, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (query) DO UPDATE
		 SET place_id = EXCLUDED.place_id, response = EXCLUDED.response, created_at = EXCLUDED.created_at`,
		entry.Query, entry.PlaceID, string(entry.Response), entry.CreatedAt,
	)
	return translateError("cache address", err)
}
