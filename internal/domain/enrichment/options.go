package enrichment

import (
	"time"

	"github.com/okian/leadrank/internal/adapters/cache"
	"github.com/okian/leadrank/internal/adapters/ratelimit"
	"github.com/okian/leadrank/pkg/logger"
)

// Option configures an Enricher.
type Option func(*Enricher)

// WithCache sets the shared enrichment cache.
func WithCache(c *cache.Cache) Option {
	return func(e *Enricher) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithRateLimiter sets the shared rate-limited client.
func WithRateLimiter(c *ratelimit.Client) Option {
	return func(e *Enricher) {
		if c != nil {
			e.limiter = c
		}
	}
}

// WithMaxPublications sets K, the number of recent publications examined.
func WithMaxPublications(k int) Option {
	return func(e *Enricher) {
		if k > 0 {
			e.maxPublications = k
		}
	}
}

// WithMinAbstractLength sets the length below which abstracts are skipped.
func WithMinAbstractLength(n int) Option {
	return func(e *Enricher) {
		if n >= 0 {
			e.minAbstractLength = n
		}
	}
}

// WithMinSubjectLength sets the number of letters a name needs to be queried.
func WithMinSubjectLength(n int) Option {
	return func(e *Enricher) {
		if n >= 0 {
			e.minSubjectLength = n
		}
	}
}

// WithTimeout bounds one subject's enrichment.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency bounds concurrent per-publication lookups for one subject.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithCacheTTL sets the TTL for every cached lookup.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithLogger sets the enricher logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}
