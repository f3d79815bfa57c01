package ratelimit

import (
	"context"
	"errors"
	"net"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrRateLimitExceeded is returned when a slot could not be acquired
	// within the configured wait.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrUpstream wraps the last error of a call that exhausted its retries
	// or failed permanently.
	ErrUpstream = errors.New("upstream call failed")
	// ErrInvalidLimit is returned for non-positive limits.
	ErrInvalidLimit = errors.New("invalid rate limit")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying: errors marked with
// Transient, server-requested retries, timeouts and deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ra *backoff.RetryAfterError
	if errors.As(err, &ra) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
