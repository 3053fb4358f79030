// Package counter provides the shared atomic increment-with-expiry primitive
// that rate limiting is built on.
package counter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "chat-relay/errors"
)

// incrWithTTL runs INCR, the first-increment EXPIRE and the TTL read-back as
// one server-side script. A get-then-set sequence would leave a race window
// between the increment and the expiry across concurrent instances.
var incrWithTTL = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])

local current = redis.call('INCR', key)
if current == 1 then
  redis.call('EXPIRE', key, window)
end

local ttl = redis.call('TTL', key)
return {current, ttl}
`)

type RedisStore struct {
	rdb redis.UniversalClient
	log *slog.Logger
}

func NewRedisStore(rdb redis.UniversalClient, log *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, log: log}
}

// IncrementAndGetTTL bumps the counter under key and returns the
// post-increment value with the remaining window. A TTL sentinel below one
// second (missing key or no expiry) is defended to the configured window
// instead of propagating a nonsensical value.
func (s *RedisStore) IncrementAndGetTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	windowSeconds := int64(window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	res, err := incrWithTTL.Run(ctx, s.rdb, []string{key}, windowSeconds).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	if len(res) < 2 {
		s.log.Warn("Counter script returned a short reply", "key", key, "len", len(res))
		return 1, time.Duration(windowSeconds) * time.Second, nil
	}

	count := res[0]
	ttlSeconds := res[1]
	if ttlSeconds < 1 {
		ttlSeconds = windowSeconds
	}
	return count, time.Duration(ttlSeconds) * time.Second, nil
}
