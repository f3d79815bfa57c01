package ratelimit

import (
	"fmt"
	"time"
)

// Limit allows Requests calls per Window.
type Limit struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// PerSecond returns a limit of n calls per second.
func PerSecond(n int) Limit {
	return Limit{Requests: n, Window: time.Second}
}

// Validate checks that both fields are positive.
func (l Limit) Validate() error {
	if l.Requests <= 0 {
		return fmt.Errorf("%w: requests must be > 0 (got %d)", ErrInvalidLimit, l.Requests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0 (got %s)", ErrInvalidLimit, l.Window)
	}
	return nil
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.Requests, l.Window)
}
