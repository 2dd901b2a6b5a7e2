package domain

import (
	"encoding/json"
	"time"
)

// AddressCacheEntry is a stored geocoder response for a normalized query.
type AddressCacheEntry struct {
	Query     string          `json:"query"`
	PlaceID   string          `json:"place_id"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}
