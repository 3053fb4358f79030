package counter

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	apperrors "chat-relay/errors"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisStore(rdb, slog.Default())
}

func TestRedisStore_IncrementAndGetTTL(t *testing.T) {
	req := require.New(t)
	mr, store := newStore(t)
	ctx := context.Background()
	key := "rl:60:user-1"

	// First increment sets the expiry to the full window
	count, ttl, err := store.IncrementAndGetTTL(ctx, key, time.Minute)
	req.NoError(err)
	req.EqualValues(1, count)
	req.Equal(time.Minute, ttl)

	// Subsequent increments do not reset the expiry
	mr.FastForward(30 * time.Second)
	count, ttl, err = store.IncrementAndGetTTL(ctx, key, time.Minute)
	req.NoError(err)
	req.EqualValues(2, count)
	req.Equal(30*time.Second, ttl)

	// The key expires within windowSeconds of the first increment
	mr.FastForward(31 * time.Second)
	count, ttl, err = store.IncrementAndGetTTL(ctx, key, time.Minute)
	req.NoError(err)
	req.EqualValues(1, count)
	req.Equal(time.Minute, ttl)
}

func TestRedisStore_ConcurrentIncrements(t *testing.T) {
	req := require.New(t)
	_, store := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	counts := make(chan int64, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, _, err := store.IncrementAndGetTTL(ctx, "rl:60:fresh", time.Minute)
			req.NoError(err)
			counts <- count
		}()
	}
	wg.Wait()
	close(counts)

	// Both increments land, no lost update
	seen := map[int64]bool{}
	for c := range counts {
		seen[c] = true
	}
	req.True(seen[1])
	req.True(seen[2])
}

func TestRedisStore_Unavailable(t *testing.T) {
	req := require.New(t)
	mr, store := newStore(t)
	mr.Close()

	_, _, err := store.IncrementAndGetTTL(context.Background(), "rl:60:user-1", time.Minute)
	req.ErrorIs(err, apperrors.ErrStoreUnavailable)
}
