package ratelimit

import (
	"time"

	"github.com/okian/leadrank/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithStore sets the window store. Defaults to a MemoryWindowStore.
func WithStore(s WindowStore) Option {
	return func(c *Client) {
		if s != nil {
			c.store = s
		}
	}
}

// WithLimit sets the limit for one endpoint.
func WithLimit(endpoint string, l Limit) Option {
	return func(c *Client) {
		c.limits[endpoint] = l
	}
}

// WithDefaultLimit sets the limit for endpoints without their own.
func WithDefaultLimit(l Limit) Option {
	return func(c *Client) {
		c.defaultLimit = l
	}
}

// WithMaxWait bounds how long a call may queue for a slot.
func WithMaxWait(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.maxWait = d
		}
	}
}

// WithMaxAttempts bounds the number of tries per call, the first included.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum retry delay.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxDelay >= initial && maxDelay > 0 {
			c.maxBackoff = maxDelay
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
