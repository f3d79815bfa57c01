// Package ratelimit throttles and retries calls to rate-limited upstream
// services. Limits are per endpoint and may be shared across replicas via
// Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

const (
	defaultMaxWait        = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// Client gates calls behind per-endpoint windows.
type Client struct {
	store          WindowStore
	limits         map[string]Limit
	defaultLimit   Limit
	maxWait        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         logger.Logger
}

// NewClient builds a Client. The default limit is three calls per second,
// the anonymous NCBI quota.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		store:          NewMemoryWindowStore(),
		limits:         make(map[string]Limit),
		defaultLimit:   PerSecond(3),
		maxWait:        defaultMaxWait,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         logger.Get().Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.defaultLimit.Validate(); err != nil {
		return nil, err
	}
	for endpoint, l := range c.limits {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint, err)
		}
	}
	return c, nil
}

// MustNewClient is NewClient for option sets known to be valid, such as the
// defaults. It panics on an invalid limit.
func MustNewClient(opts ...Option) *Client {
	c, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("ratelimit: %v", err))
	}
	return c
}

// LimitFor returns the limit applied to endpoint.
func (c *Client) LimitFor(endpoint string) Limit {
	if l, ok := c.limits[endpoint]; ok {
		return l
	}
	return c.defaultLimit
}

// Acquire blocks until endpoint has a free slot. It gives up with
// ErrRateLimitExceeded once the wait would exceed the configured maximum.
func (c *Client) Acquire(ctx context.Context, endpoint string) error {
	limit := c.LimitFor(endpoint)
	var waited time.Duration
	for {
		allowed, retryAfter := c.store.Allow(ctx, endpoint, limit)
		if allowed {
			return nil
		}
		if waited+retryAfter > c.maxWait {
			metrics.RecordRateLimitRejection(endpoint)
			return fmt.Errorf("%w: %s (%s)", ErrRateLimitExceeded, endpoint, limit)
		}
		metrics.RecordRateLimitWait(endpoint)
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		waited += retryAfter
	}
}

// Call runs fn under endpoint's limit. Transient failures are retried with
// exponential backoff up to the attempt limit; each attempt takes its own
// slot. Exhausted and permanent failures wrap ErrUpstream.
func Call[T any](ctx context.Context, c *Client, endpoint string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		attempt++
		if err := c.Acquire(ctx, endpoint); err != nil {
			return zero, backoff.Permanent(err)
		}
		start := time.Now()
		v, err := fn(ctx)
		elapsed := float64(time.Since(start).Milliseconds())
		if err == nil {
			metrics.RecordUpstreamLatency(endpoint, "success", elapsed)
			return v, nil
		}
		metrics.RecordUpstreamLatency(endpoint, "error", elapsed)
		if !IsTransient(err) || ctx.Err() != nil {
			return zero, backoff.Permanent(err)
		}
		if attempt < c.maxAttempts {
			metrics.RecordRateLimitRetry(endpoint)
			c.logger.Debug(ctx, "retrying upstream call",
				logger.String("endpoint", endpoint),
				logger.Int("attempt", attempt),
				logger.Error(err))
		}
		return zero, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialBackoff
	expo.MaxInterval = c.maxBackoff

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return v, nil
	}
	var zero T
	if errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, context.Canceled) {
		return zero, err
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, err)
}
