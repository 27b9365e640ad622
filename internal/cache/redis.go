package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	logx "github.com/tripwise/server/pkg/logger"
)

// Redis is a Store backed by a shared Redis instance, letting multiple
// server processes share one provider-response cache. TTL expiry is
// delegated to Redis itself.
type Redis struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedis(rdb redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) key(key string) string {
	return "providercache:" + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Warn().Err(err).Str("key", key).Msg("provider cache read failed")
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := r.rdb.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		// Cache writes are best effort; the gateway call already succeeded.
		logx.Warn().Err(err).Str("key", key).Msg("provider cache write failed")
	}
}

var _ Store = (*Redis)(nil)
