package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
)

const waitTick = 5 * time.Millisecond

type recentStub struct {
	calls int
	err   error
}

func (r *recentStub) Increment(context.Context, string) error {
	r.calls++
	return r.err
}

type fixture struct {
	limiter  *mocks.MockRateLimiter
	sessions *mocks.MockSessionValidator
	users    *mocks.MockUserStore
	rooms    *mocks.MockRoomStore
	messages *mocks.MockMessageStore
	files    *mocks.MockFileStore
	fabric   *mocks.MockBroadcaster
	mentions *mocks.MockMentionNotifier
	recent   *recentStub
	monitor  *observability.Monitor
	pipe     *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	moderator, err := moderation.NewModerator([]string{"badword"})
	require.NoError(t, err)

	f := &fixture{
		limiter:  mocks.NewMockRateLimiter(ctrl),
		sessions: mocks.NewMockSessionValidator(ctrl),
		users:    mocks.NewMockUserStore(ctrl),
		rooms:    mocks.NewMockRoomStore(ctrl),
		messages: mocks.NewMockMessageStore(ctrl),
		files:    mocks.NewMockFileStore(ctrl),
		fabric:   mocks.NewMockBroadcaster(ctrl),
		mentions: mocks.NewMockMentionNotifier(ctrl),
		recent:   &recentStub{},
		monitor:  observability.NewMonitor(),
	}

	pool := NewPool(1, 8, f.monitor, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	f.pipe = New(Deps{
		Limiter:   f.limiter,
		Sessions:  f.sessions,
		Moderator: moderator,
		Users:     f.users,
		Rooms:     f.rooms,
		Messages:  f.messages,
		Files:     f.files,
		Fabric:    f.fabric,
		Recent:    f.recent,
		Mentions:  f.mentions,
		Pool:      pool,
		Monitor:   f.monitor,
	}, Config{
		RateLimitMax:     5,
		RateLimitWindow:  time.Minute,
		MaxContentLength: 1000,
	}, slog.Default())
	return f
}

func (f *fixture) conn(ctrl *gomock.Controller, userID string) *mocks.MockConn {
	conn := mocks.NewMockConn(ctrl)
	conn.EXPECT().Identity().Return(domain.SocketIdentity{
		UserID: userID, DisplayName: userID, AuthSessionID: "sess-" + userID,
	}, true).AnyTimes()
	return conn
}

func (f *fixture) allow() {
	f.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), int64(5), time.Minute).
		Return(domain.RateLimitDecision{Allowed: true, Limit: 5, Remaining: 4}).AnyTimes()
}

func (f *fixture) validSession() {
	f.sessions.EXPECT().Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(true, nil).AnyTimes()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, waitTick)
}

func Test_HandleChatMessage_HappyPath(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("alice").Return(domain.User{ID: "alice", Name: "Alice"}, nil)
	f.rooms.EXPECT().FindByID("r1").Return(domain.Room{ID: "r1"}, nil)

	var saved domain.ChatMessage
	f.messages.EXPECT().Save(gomock.Any()).
		Do(func(msg domain.ChatMessage) { saved = msg }).Return(nil)

	var broadcast event.MessagePayload
	f.fabric.EXPECT().Broadcast(gomock.Any(), "r1", event.Message, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			broadcast = payload.(event.MessagePayload)
		}).Return(nil)
	f.mentions.EXPECT().Notify(gomock.Any(), "r1", "alice", []string{"bob"}).Return(nil)
	f.sessions.EXPECT().TouchLastActivity(gomock.Any(), "alice").Return(nil)

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", MessageType: "text", Content: "  hello @bob  ",
	})
	waitFor(t, func() bool { return f.monitor.Latest().MessagesTotal == 1 })

	req.Equal("hello @bob", saved.Content)
	req.Equal(domain.MessageTypeText, saved.Type)
	req.Equal([]string{"bob"}, saved.Mentions)
	req.Equal("Alice", broadcast.Sender.Name)
	req.Equal(saved.ID.String(), broadcast.ID)
	req.Equal(1, f.recent.calls)
}

func Test_HandleChatMessage_RateLimited(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.validSession()
	f.limiter.EXPECT().Check(gomock.Any(), "alice", int64(5), time.Minute).
		Return(domain.RateLimitDecision{Allowed: false, Limit: 5, RetryAfterSeconds: 30})

	var refusal event.ErrorPayload
	conn.EXPECT().SendEvent(event.Error, gomock.Any()).
		Do(func(_ string, payload any) { refusal = payload.(event.ErrorPayload) })

	// No persistence and no broadcast may happen for a limited message
	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "hello",
	})

	req.Equal(event.CodeRateLimitExceeded, refusal.Code)
	req.EqualValues(30, refusal.RetryAfter)
	req.EqualValues(1, f.monitor.Latest().RateLimitHits)
	req.EqualValues(1, f.monitor.ErrorCount("rate_limit_exceeded"))
}

func Test_HandleChatMessage_BannedTerm(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	f.validSession()

	var refusal event.ErrorPayload
	conn.EXPECT().SendEvent(event.Error, gomock.Any()).
		Do(func(_ string, payload any) { refusal = payload.(event.ErrorPayload) })

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "this is b4dw0rd spelled sideways",
	})

	req.Equal(event.CodeMessageRejected, refusal.Code)
	req.EqualValues(1, f.monitor.ErrorCount("banned_term"))
}

func Test_HandleChatMessage_SessionSoftFail(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	// Validation says no, the message still flows
	f.sessions.EXPECT().Validate(gomock.Any(), "alice", "sess-alice").Return(false, nil)
	f.users.EXPECT().FindByID("alice").Return(domain.User{ID: "alice", Name: "Alice"}, nil)
	f.rooms.EXPECT().FindByID("r1").Return(domain.Room{ID: "r1"}, nil)
	f.messages.EXPECT().Save(gomock.Any()).Return(nil)
	f.fabric.EXPECT().Broadcast(gomock.Any(), "r1", event.Message, gomock.Any()).Return(nil)
	f.sessions.EXPECT().TouchLastActivity(gomock.Any(), "alice").Return(nil)

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "still here",
	})
	waitFor(t, func() bool { return f.monitor.Latest().MessagesTotal == 1 })

	req.EqualValues(1, f.monitor.Latest().SessionAnomalies)
}

func Test_HandleChatMessage_SenderFallback(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "ghost")

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("ghost").Return(domain.User{}, apperrors.ErrNotFound)
	f.rooms.EXPECT().FindByID("r1").Return(domain.Room{ID: "r1"}, nil)
	f.messages.EXPECT().Save(gomock.Any()).Return(nil)

	var broadcast event.MessagePayload
	f.fabric.EXPECT().Broadcast(gomock.Any(), "r1", event.Message, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			broadcast = payload.(event.MessagePayload)
		}).Return(nil)
	f.sessions.EXPECT().TouchLastActivity(gomock.Any(), "ghost").Return(nil)

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "anonymous",
	})
	waitFor(t, func() bool { return f.monitor.Latest().MessagesTotal == 1 })

	req.Equal(domain.FallbackDisplayName, broadcast.Sender.Name)
	req.Equal("ghost", broadcast.Sender.ID)
}

func Test_HandleChatMessage_RoomNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("alice").Return(domain.User{ID: "alice", Name: "Alice"}, nil)
	f.rooms.EXPECT().FindByID("ghost-room").Return(domain.Room{}, apperrors.ErrNotFound)

	// Dropped silently: no error event, no persistence, no broadcast
	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "ghost-room", Content: "hello",
	})
	waitFor(t, func() bool { return f.monitor.ErrorCount("room_not_found") == 1 })
}

func Test_HandleChatMessage_EmptyContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("alice").Return(domain.User{ID: "alice", Name: "Alice"}, nil)

	reached := make(chan struct{})
	f.rooms.EXPECT().FindByID("r1").DoAndReturn(func(string) (domain.Room, error) {
		close(reached)
		return domain.Room{ID: "r1"}, nil
	})

	// Whitespace-only text produces nothing: no save, no broadcast, no error
	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "   ",
	})
	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("async stage never ran")
	}
	time.Sleep(20 * time.Millisecond)
}

func Test_HandleChatMessage_FileMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	file := domain.File{ID: "f1", UserID: "alice", OriginalName: "cat.png",
		Mimetype: "image/png", Size: 2048}

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("alice").Return(domain.User{ID: "alice", Name: "Alice"}, nil)
	f.rooms.EXPECT().FindByID("r1").Return(domain.Room{ID: "r1"}, nil)
	f.files.EXPECT().FindByID("f1").Return(file, nil)

	var saved domain.ChatMessage
	f.messages.EXPECT().Save(gomock.Any()).
		Do(func(msg domain.ChatMessage) { saved = msg }).Return(nil)

	var broadcast event.MessagePayload
	f.fabric.EXPECT().Broadcast(gomock.Any(), "r1", event.Message, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			broadcast = payload.(event.MessagePayload)
		}).Return(nil)
	f.sessions.EXPECT().TouchLastActivity(gomock.Any(), "alice").Return(nil)

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", MessageType: "file", Content: "look at this",
		FileData: &event.FileRef{ID: "f1"},
	})
	waitFor(t, func() bool { return f.monitor.Latest().MessagesTotal == 1 })

	req.Equal(domain.MessageTypeFile, saved.Type)
	req.Equal("f1", saved.FileID)
	req.Equal("image/png", saved.Metadata["fileType"])
	req.NotNil(broadcast.File)
	req.Equal("cat.png", broadcast.File.OriginalName)
}

func Test_HandleChatMessage_FileNotOwned(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "mallory")

	f.allow()
	f.validSession()
	f.users.EXPECT().FindByID("mallory").Return(domain.User{ID: "mallory", Name: "Mallory"}, nil)
	f.rooms.EXPECT().FindByID("r1").Return(domain.Room{ID: "r1"}, nil)
	f.files.EXPECT().FindByID("f1").
		Return(domain.File{ID: "f1", UserID: "alice"}, nil)

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", MessageType: "file", FileData: &event.FileRef{ID: "f1"},
	})
	waitFor(t, func() bool { return f.monitor.ErrorCount("bad_file") == 1 })
}

func Test_HandleChatMessage_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		payload   *event.ChatMessagePayload
		wantClass string
		wantCode  string
	}{
		{
			name:      "nil payload",
			payload:   nil,
			wantClass: "null_data",
			wantCode:  event.CodeMessageError,
		},
		{
			name:      "missing room",
			payload:   &event.ChatMessagePayload{Content: "hello"},
			wantClass: "bad_room",
			wantCode:  event.CodeMessageError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			f := newFixture(t)
			conn := f.conn(ctrl, "alice")

			var refusal event.ErrorPayload
			conn.EXPECT().SendEvent(event.Error, gomock.Any()).
				Do(func(_ string, payload any) { refusal = payload.(event.ErrorPayload) })

			f.pipe.HandleChatMessage(context.Background(), conn, tt.payload)
			req.Equal(tt.wantCode, refusal.Code)
			req.EqualValues(1, f.monitor.ErrorCount(tt.wantClass))
		})
	}
}

func Test_HandleChatMessage_NoIdentity(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)

	conn := mocks.NewMockConn(ctrl)
	conn.EXPECT().Identity().Return(domain.SocketIdentity{}, false)

	var refusal event.ErrorPayload
	conn.EXPECT().SendEvent(event.Error, gomock.Any()).
		Do(func(_ string, payload any) { refusal = payload.(event.ErrorPayload) })

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: "hello",
	})
	req.Equal(event.CodeSessionExpired, refusal.Code)
}

func Test_HandleChatMessage_ContentTooLong(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	conn := f.conn(ctrl, "alice")

	f.allow()
	f.validSession()

	long := make([]rune, 1001)
	for i := range long {
		long[i] = 'a'
	}

	var refusal event.ErrorPayload
	conn.EXPECT().SendEvent(event.Error, gomock.Any()).
		Do(func(_ string, payload any) { refusal = payload.(event.ErrorPayload) })

	f.pipe.HandleChatMessage(context.Background(), conn, &event.ChatMessagePayload{
		Room: "r1", Content: string(long),
	})
	req.Equal(event.CodeMessageError, refusal.Code)
	req.EqualValues(1, f.monitor.ErrorCount("bad_content"))
}
