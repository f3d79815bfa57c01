package cache

import "errors"

// Sentinel errors for the enrichment cache.
var (
	ErrBackend = errors.New("cache backend failed")
	ErrDecode  = errors.New("cache entry decode failed")
)
