package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"chat-relay/contract"
)

const recentCountKeyPrefix = "room:recent:"

// RoomActivity keeps an approximate recent-message count per room in the
// ephemeral chat store. On a cache miss the count is rebuilt from the
// message log, so evictions and restarts self-heal.
type RoomActivity struct {
	store        contract.ChatDataStore
	messages     contract.MessageStore
	recentWindow time.Duration
	log          *slog.Logger
}

func NewRoomActivity(store contract.ChatDataStore, messages contract.MessageStore,
	recentWindow time.Duration, log *slog.Logger) *RoomActivity {
	return &RoomActivity{
		store:        store,
		messages:     messages,
		recentWindow: recentWindow,
		log:          log,
	}
}

// Increment bumps the cached count for the room, rebuilding it from the
// message log when the cached value is missing or unreadable.
func (a *RoomActivity) Increment(ctx context.Context, roomID string) error {
	count, err := a.current(ctx, roomID)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, recentCountKeyPrefix+roomID, strconv.FormatInt(count+1, 10))
}

// Count returns the cached recent-message count, rebuilding it on a miss.
func (a *RoomActivity) Count(ctx context.Context, roomID string) (int64, error) {
	return a.current(ctx, roomID)
}

func (a *RoomActivity) current(ctx context.Context, roomID string) (int64, error) {
	raw, ok, err := a.store.Get(ctx, recentCountKeyPrefix+roomID)
	if err != nil {
		return 0, fmt.Errorf("room %s recent count read: %w", roomID, err)
	}
	if ok {
		count, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr == nil {
			return count, nil
		}
		a.log.Warn("Corrupt recent count entry, rebuilding", "roomId", roomID, "value", raw)
	}
	since := time.Now().UTC().Add(-a.recentWindow)
	count, err := a.messages.CountRecentSince(roomID, since)
	if err != nil {
		return 0, fmt.Errorf("room %s recent count rebuild: %w", roomID, err)
	}
	return count, nil
}
