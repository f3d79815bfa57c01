package cache

import (
	"context"
	"time"
)

// Entry is a stored value with its freshness window.
type Entry struct {
	Value     []byte    `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Backend stores entries by rendered key.
type Backend interface {
	// Get returns the entry for key. found is false on a miss.
	Get(ctx context.Context, key string) (e Entry, found bool, err error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
}
