// Package cache provides the enrichment cache: a TTL store in front of
// expensive upstream lookups with at most one in-flight computation per key.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

const defaultComputeTimeout = 30 * time.Second

// Result is a fresh cached value.
type Result struct {
	Key       Key
	Value     []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache fronts a Backend. It is safe for concurrent use.
type Cache struct {
	backend        Backend
	flights        singleflight.Group
	computeTimeout time.Duration
	now            func() time.Time
	logger         logger.Logger
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:        backend,
		computeTimeout: defaultComputeTimeout,
		now:            time.Now,
		logger:         logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a value no older than its TTL. Backend failures are logged and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key Key) (Result, bool) {
	e, found, err := c.backend.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn(ctx, "cache get failed", logger.String("key", key.String()), logger.Error(err))
		return Result{}, false
	}
	if !found || e.Expired(c.now()) {
		return Result{}, false
	}
	return Result{Key: key, Value: e.Value, FetchedAt: e.FetchedAt, TTL: e.ExpiresAt.Sub(e.FetchedAt)}, true
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	return c.backend.Set(ctx, key.String(), Entry{Value: value, FetchedAt: now, ExpiresAt: now.Add(ttl)})
}

// Invalidate removes key.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	return c.backend.Delete(ctx, key.String())
}

// GetOrCompute returns the cached value for key or runs fn to produce it.
// Concurrent callers for the same key share one computation. The computation
// runs detached from the caller that started it, so a caller giving up only
// ends its own wait; the result still lands in the cache. Failed computations
// are not cached.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, fn ComputeFunc) ([]byte, error) {
	kind := string(key.Kind)
	if r, ok := c.Get(ctx, key); ok {
		metrics.RecordCacheHit(kind)
		return r.Value, nil
	}
	metrics.RecordCacheMiss(kind)

	ch := c.flights.DoChan(key.String(), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()

		// A flight that finished between our miss and this one already
		// filled the entry.
		if r, ok := c.Get(fctx, key); ok {
			return r.Value, nil
		}

		metrics.RecordCacheComputation(kind)
		v, err := fn(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(fctx, key, v, ttl); err != nil {
			c.logger.Warn(fctx, "cache set failed", logger.String("key", key.String()), logger.Error(err))
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		v, _ := res.Val.([]byte)
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetOrComputeJSON is GetOrCompute for values stored as JSON.
func GetOrComputeJSON[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		// Undecodable entries are dropped so the next call recomputes.
		_ = c.Invalidate(ctx, key)
		return zero, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return out, nil
}
