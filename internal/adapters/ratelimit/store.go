package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/leadrank/pkg/logger"
)

// WindowStore counts calls per key in fixed windows. retryAfter is how long
// until the current window ends when the call is not allowed.
type WindowStore interface {
	Allow(ctx context.Context, key string, limit Limit) (allowed bool, retryAfter time.Duration)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// MemoryWindowStore is a process-local fixed window counter.
type MemoryWindowStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryWindowStore creates an empty store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow implements WindowStore.
func (s *MemoryWindowStore) Allow(_ context.Context, key string, limit Limit) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		s.buckets[key] = &bucket{count: 1, windowEnd: now.Add(limit.Window)}
		return true, 0
	}
	if b.count < limit.Requests {
		b.count++
		return true, 0
	}
	retryAfter := b.windowEnd.Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter
}

// Cleanup removes finished windows.
func (s *MemoryWindowStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, b := range s.buckets {
		if !now.Before(b.windowEnd) {
			delete(s.buckets, k)
		}
	}
}

// RedisWindowStore shares windows across replicas so the upstream quota
// holds for the whole deployment. It fails open when Redis is unreachable.
type RedisWindowStore struct {
	client redis.Cmdable
	prefix string
	logger logger.Logger
}

// NewRedisWindowStore wraps client; keys are prefixed with prefix.
func NewRedisWindowStore(client redis.Cmdable, prefix string) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: prefix, logger: logger.Get().Named("ratelimit")}
}

// Allow implements WindowStore.
func (s *RedisWindowStore) Allow(ctx context.Context, key string, limit Limit) (bool, time.Duration) {
	k := s.prefix + key
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn(ctx, "rate limit store unavailable, allowing call",
			logger.String("key", k), logger.Error(err))
		return true, 0
	}
	// A key without expiry was just created by this INCR.
	if pttl.Val() < 0 {
		if err := s.client.PExpire(ctx, k, limit.Window).Err(); err != nil {
			s.logger.Warn(ctx, "rate limit window expiry not set", logger.String("key", k), logger.Error(err))
		}
	}
	if incr.Val() <= int64(limit.Requests) {
		return true, 0
	}
	retryAfter := pttl.Val()
	if retryAfter <= 0 {
		retryAfter = limit.Window
	}
	return false, retryAfter
}
