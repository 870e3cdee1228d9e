package inference

import (
	"context"
	"time"

	"voice-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisSlots is a cluster-wide SlotLimiter backed by a Redis counter.
type RedisSlots struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

// NewRedisSlots limits holders of key to limit at a time. ttl bounds how
// long a slot leaked by a crashed process stays taken.
func NewRedisSlots(rdb *redis.Client, key string, limit int, ttl time.Duration) *RedisSlots {
	return &RedisSlots{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireSlot(ctx, s.rdb, s.key, s.limit, s.ttl)
}

func (s *RedisSlots) Release(ctx context.Context) error {
	return utils.ReleaseSlot(ctx, s.rdb, s.key)
}
