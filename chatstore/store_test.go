package chatstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chat-relay/contract"
)

// Both variants satisfy the same contract so swapping is transparent.
func TestStoreContract(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	stores := map[string]contract.ChatDataStore{
		"local":  NewLocalStore(),
		"shared": NewSharedStore(rdb, "chat:", 24*time.Hour),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			req.NoError(err)
			req.False(ok)

			req.NoError(store.Set(ctx, "conn_users:userid:u1", "online"))
			value, ok, err := store.Get(ctx, "conn_users:userid:u1")
			req.NoError(err)
			req.True(ok)
			req.Equal("online", value)

			req.NoError(store.Delete(ctx, "conn_users:userid:u1"))
			_, ok, err = store.Get(ctx, "conn_users:userid:u1")
			req.NoError(err)
			req.False(ok)
		})
	}
}

func TestLocalStore_SizeIsExact(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewLocalStore()

	for _, k := range []string{"a", "b", "c"} {
		req.NoError(store.Set(ctx, k, "v"))
	}
	size, err := store.Size(ctx)
	req.NoError(err)
	req.Equal(3, size)
}

func TestSharedStore_TTLBoundsGrowth(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSharedStore(rdb, "chat:", time.Hour)

	req.NoError(store.Set(ctx, "flag", "1"))
	mr.FastForward(2 * time.Hour)

	_, ok, err := store.Get(ctx, "flag")
	req.NoError(err)
	req.False(ok, "entries must expire with the namespace TTL")
}

func TestSharedStore_SizeIsAdvisory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSharedStore(rdb, "chat:", time.Hour)

	req.NoError(store.Set(ctx, "k1", "v"))
	req.NoError(store.Set(ctx, "k2", "v"))
	// A key outside the namespace is never counted
	req.NoError(rdb.Set(ctx, "other:k", "v", 0).Err())

	size, err := store.Size(ctx)
	req.NoError(err)
	req.LessOrEqual(size, 2)
	req.Positive(size)
}
