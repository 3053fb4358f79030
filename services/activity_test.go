package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/chatstore"
	apperrors "chat-relay/errors"
	"chat-relay/mocks"
)

func Test_Increment_RebuildsOnMiss(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	store := chatstore.NewLocalStore()
	messages := mocks.NewMockMessageStore(ctrl)

	// Only the first increment rebuilds from the message log
	messages.EXPECT().CountRecentSince("r1", gomock.Any()).Return(int64(4), nil).Times(1)

	activity := NewRoomActivity(store, messages, time.Hour, slog.Default())
	req.NoError(activity.Increment(ctx, "r1"))
	req.NoError(activity.Increment(ctx, "r1"))

	count, err := activity.Count(ctx, "r1")
	req.NoError(err)
	req.EqualValues(6, count)
}

func Test_Increment_RecoversCorruptEntry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	store := chatstore.NewLocalStore()
	req.NoError(store.Set(ctx, recentCountKeyPrefix+"r1", "not-a-number"))

	messages := mocks.NewMockMessageStore(ctrl)
	messages.EXPECT().CountRecentSince("r1", gomock.Any()).Return(int64(2), nil)

	activity := NewRoomActivity(store, messages, time.Hour, slog.Default())
	req.NoError(activity.Increment(ctx, "r1"))

	count, err := activity.Count(ctx, "r1")
	req.NoError(err)
	req.EqualValues(3, count)
}

func Test_Increment_StoreUnavailable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	store := mocks.NewMockChatDataStore(ctrl)
	store.EXPECT().Get(ctx, gomock.Any()).Return("", false, apperrors.ErrStoreUnavailable)

	activity := NewRoomActivity(store, mocks.NewMockMessageStore(ctrl), time.Hour, slog.Default())
	req.ErrorIs(activity.Increment(ctx, "r1"), apperrors.ErrStoreUnavailable)
}
