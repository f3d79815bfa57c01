package dedupe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/leadrank/pkg/logger"
)

// RedisDeduper shares import IDs across replicas with SET NX and a TTL. When
// Redis is unreachable it reports IDs as unseen so imports keep flowing.
type RedisDeduper struct {
	client   redis.Cmdable
	prefix   string
	ttl      time.Duration
	recorded atomic.Int64
	logger   logger.Logger
}

// NewRedisDeduper creates a RedisDeduper. IDs expire after ttl.
func NewRedisDeduper(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl, logger: logger.Get().Named("dedupe")}
}

// SeenAndRecord implements Deduper.
func (r *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	ok, err := r.client.SetNX(ctx, r.prefix+id, 1, r.ttl).Result()
	if err != nil {
		r.logger.Warn(ctx, "dedupe store unavailable, accepting import", logger.String("import_id", id), logger.Error(err))
		return false
	}
	if ok {
		r.recorded.Add(1)
	}
	return !ok
}

// Unrecord implements Deduper.
func (r *RedisDeduper) Unrecord(ctx context.Context, id string) {
	n, err := r.client.Del(ctx, r.prefix+id).Result()
	if err != nil {
		r.logger.Warn(ctx, "dedupe unrecord failed", logger.String("import_id", id), logger.Error(err))
		return
	}
	r.recorded.Add(-n)
}

// Size returns the number of IDs this instance recorded and still holds.
func (r *RedisDeduper) Size() int64 {
	return r.recorded.Load()
}
