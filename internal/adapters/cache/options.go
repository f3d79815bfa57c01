package cache

import (
	"time"

	"github.com/okian/leadrank/pkg/logger"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithComputeTimeout bounds a single GetOrCompute computation. The bound
// applies to the computation itself, not to any caller's wait.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

// WithClock sets the time source for freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
