package ranking

import (
	"time"

	"github.com/okian/leadrank/pkg/logger"
)

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithMaxAttempts bounds whole-pass retries after conflicts or store errors.
func WithMaxAttempts(n int) Option {
	return func(m *Maintainer) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum delay between passes.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(m *Maintainer) {
		if initial > 0 {
			m.initialBackoff = initial
		}
		if maxDelay >= initial && maxDelay > 0 {
			m.maxBackoff = maxDelay
		}
	}
}

// WithLogger sets the maintainer logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Maintainer) {
		if l != nil {
			m.logger = l
		}
	}
}
