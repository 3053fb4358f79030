package chatstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "chat-relay/errors"
)

// sizeScanCount bounds the single SCAN page used by Size. A full-namespace
// scan is too costly to run synchronously, so the result is advisory only.
const sizeScanCount = 1000

// SharedStore is the multi-instance variant, namespaced under prefix and
// TTL-bounded so abandoned keys never accumulate.
type SharedStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewSharedStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *SharedStore {
	return &SharedStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *SharedStore) key(key string) string {
	return s.prefix + key
}

func (s *SharedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return value, true, nil
}

func (s *SharedStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SharedStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Size returns the number of namespaced keys seen in one SCAN page.
// Approximate by contract; callers must not depend on its precision.
func (s *SharedStore) Size(ctx context.Context) (int, error) {
	keys, _, err := s.rdb.Scan(ctx, 0, s.prefix+"*", sizeScanCount).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return len(keys), nil
}
