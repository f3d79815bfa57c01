package cache

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithSweepInterval sets how often expired entries are purged.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryBackend) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithMemoryClock sets the time source for expiry checks.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		if now != nil {
			m.now = now
		}
	}
}

// MemoryBackend keeps entries in a process-local map and sweeps expired
// entries in the background until Close.
type MemoryBackend struct {
	mu            sync.RWMutex
	items         map[string]Entry
	now           func() time.Time
	sweepInterval time.Duration
	stop          chan struct{}
	once          sync.Once
}

// NewMemoryBackend creates a backend and starts its sweeper.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		items:         make(map[string]Entry),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweepLoop()
	return m
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || e.Expired(m.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Sweep removes expired entries.
func (m *MemoryBackend) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.items {
		if e.Expired(now) {
			delete(m.items, k)
		}
	}
}

// Close stops the sweeper.
func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryBackend) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
