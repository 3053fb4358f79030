//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"chat-relay/domain"
)

// CounterStore is the atomic increment-with-expiry primitive shared by all
// instances. The increment and the first-increment expiry must not race.
type CounterStore interface {
	IncrementAndGetTTL(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RateLimiter decides admission per identity over a fixed window. Quota and
// window are caller-supplied so the limiter stays a generic primitive.
type RateLimiter interface {
	Check(ctx context.Context, identity string, maxRequests int64, window time.Duration) domain.RateLimitDecision
}

// SessionValidator is the external session system. The soft-fail policy on
// validation errors is owned by the pipeline, not by implementations.
type SessionValidator interface {
	Validate(ctx context.Context, userID, authSessionID string) (bool, error)
	TouchLastActivity(ctx context.Context, userID string) error
}

// ChatDataStore holds ephemeral chat-runtime state. Size is advisory for
// shared implementations and must not be relied on for correctness.
type ChatDataStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context) (int, error)
}

// Conn is one client connection as seen by the pipeline. SendEvent must be
// safe for concurrent use and must never block the caller on a slow peer.
type Conn interface {
	ID() string
	Identity() (domain.SocketIdentity, bool)
	SendEvent(event string, payload any)
}

// Broadcaster delivers an event to every connection joined to a room,
// across all server instances when clustered.
type Broadcaster interface {
	Join(roomID string, conn Conn)
	Leave(roomID string, conn Conn)
	Broadcast(ctx context.Context, roomID, eventName string, payload any) error
	Members(roomID string) []string
}

// MessageStore persists admitted messages.
type MessageStore interface {
	Save(msg domain.ChatMessage) error
	FindByRoomBefore(roomID string, before time.Time, limit int) ([]domain.ChatMessage, error)
	CountRecentSince(roomID string, since time.Time) (int64, error)
}

type UserStore interface {
	FindByID(id string) (domain.User, error)
	FindByEmail(email string) (domain.User, error)
}

// RoomStore exposes rooms with a per-document atomic AddParticipant.
type RoomStore interface {
	Create(room domain.Room, password string) (domain.Room, error)
	FindByID(id string) (domain.Room, error)
	AddParticipant(roomID, userID, password string) (domain.Room, error)
}

type FileStore interface {
	FindByID(id string) (domain.File, error)
}

// MentionNotifier dispatches @mentions extracted from an admitted message.
// Callers treat it as best-effort.
type MentionNotifier interface {
	Notify(ctx context.Context, roomID, senderID string, mentions []string) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. Supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
