// Package pipeline orchestrates message ingestion: synchronous fast-path
// checks on the connection-event goroutine, then an async tail (persist,
// count, broadcast, side effects) on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/observability"
)

// RecentCounter updates the approximate per-room recent-message count.
type RecentCounter interface {
	Increment(ctx context.Context, roomID string) error
}

type Config struct {
	RateLimitMax     int64
	RateLimitWindow  time.Duration
	MaxContentLength int
}

type Pipeline struct {
	log       *slog.Logger
	validate  *validator.Validate
	limiter   contract.RateLimiter
	sessions  contract.SessionValidator
	moderator moderation.Moderator
	users     contract.UserStore
	rooms     contract.RoomStore
	messages  contract.MessageStore
	files     contract.FileStore
	fabric    contract.Broadcaster
	recent    RecentCounter
	mentions  contract.MentionNotifier
	pool      *Pool
	monitor   *observability.Monitor
	policy    FailurePolicy
	cfg       Config
}

type Deps struct {
	Limiter   contract.RateLimiter
	Sessions  contract.SessionValidator
	Moderator moderation.Moderator
	Users     contract.UserStore
	Rooms     contract.RoomStore
	Messages  contract.MessageStore
	Files     contract.FileStore
	Fabric    contract.Broadcaster
	Recent    RecentCounter
	Mentions  contract.MentionNotifier
	Pool      *Pool
	Monitor   *observability.Monitor
	Policy    FailurePolicy
}

func New(deps Deps, cfg Config, log *slog.Logger) *Pipeline {
	if deps.Policy == nil {
		deps.Policy = DefaultFailurePolicy()
	}
	return &Pipeline{
		log:       log,
		validate:  validator.New(),
		limiter:   deps.Limiter,
		sessions:  deps.Sessions,
		moderator: deps.Moderator,
		users:     deps.Users,
		rooms:     deps.Rooms,
		messages:  deps.Messages,
		files:     deps.Files,
		fabric:    deps.Fabric,
		recent:    deps.Recent,
		mentions:  deps.Mentions,
		pool:      deps.Pool,
		monitor:   deps.Monitor,
		policy:    deps.Policy,
		cfg:       cfg,
	}
}

// HandleChatMessage runs the synchronous fast path for one inbound message
// and returns as soon as the async tail is enqueued. Every rejection emits
// exactly one error event with a stable code; nothing escapes uncaught into
// the transport layer.
func (p *Pipeline) HandleChatMessage(ctx context.Context, conn contract.Conn, payload *event.ChatMessagePayload) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Message handling panic", "recover", r)
			p.reject(conn, "exception", event.CodeMessageError, "message handling failed", 0)
		}
	}()

	if payload == nil {
		p.reject(conn, "null_data", event.CodeMessageError, "message data is missing", 0)
		return
	}

	identity, ok := conn.Identity()
	if !ok {
		p.reject(conn, "session_null", event.CodeSessionExpired, "session expired, sign in again", 0)
		return
	}

	if err := p.validate.Struct(payload); err != nil {
		p.reject(conn, "bad_room", event.CodeMessageError, "roomId is not valid", 0)
		return
	}
	roomID := payload.Room
	msgType := domain.NormalizeMessageType(payload.MessageType)

	p.softCheckSession(ctx, identity, roomID)

	decision := p.limiter.Check(ctx, identity.UserID, p.cfg.RateLimitMax, p.cfg.RateLimitWindow)
	if !decision.Allowed {
		p.monitor.RecordRateLimitHit()
		p.reject(conn, "rate_limit_exceeded", event.CodeRateLimitExceeded,
			"message quota exceeded, retry later", decision.RetryAfterSeconds)
		return
	}

	trimmed := payload.TrimmedContent()
	if p.cfg.MaxContentLength > 0 && len([]rune(trimmed)) > p.cfg.MaxContentLength {
		p.reject(conn, "bad_content", event.CodeMessageError, "message content is not valid", 0)
		return
	}

	if p.moderator.ContainsBannedTerm(trimmed) {
		lang := whatlanggo.Detect(trimmed).Lang.Iso6391()
		p.log.Warn("Message rejected by moderation",
			"userId", identity.UserID, "roomId", roomID, "lang", lang)
		p.reject(conn, "banned_term", event.CodeMessageRejected,
			"message contains a banned term", 0)
		return
	}

	fileRef := payload.FileData
	p.pool.Submit(func(taskCtx context.Context) {
		p.processAsync(taskCtx, identity, roomID, msgType, trimmed, fileRef)
	})
}

// softCheckSession applies the session policy: an invalid or erroring
// validation is logged and counted but the message still flows, because the
// session system is secondary and the connection was already authenticated
// at handshake time.
func (p *Pipeline) softCheckSession(ctx context.Context, identity domain.SocketIdentity, roomID string) {
	valid, err := p.sessions.Validate(ctx, identity.UserID, identity.AuthSessionID)
	if err == nil && valid {
		return
	}
	if p.policy.OnFailure(DepSessionValidator) != ActionProceed {
		return
	}
	p.monitor.RecordSessionAnomaly()
	p.monitor.RecordError("session_soft_invalid")
	p.log.Warn("Session soft-check failed, allowing send",
		"userId", identity.UserID, "authSessionId", identity.AuthSessionID,
		"roomId", roomID, "err", err)
}

// processAsync is the fire-and-forget tail. Its failures never reach the
// client; they are logged and counted only.
func (p *Pipeline) processAsync(ctx context.Context, identity domain.SocketIdentity,
	roomID string, msgType domain.MessageType, trimmed string, fileRef *event.FileRef) {
	defer func() {
		if r := recover(); r != nil {
			p.monitor.RecordError("exception_async")
			p.log.Error("Async message handling panic", "roomId", roomID, "recover", r)
		}
	}()

	sender, err := p.users.FindByID(identity.UserID)
	if err != nil {
		// Never block delivery on a secondary lookup
		sender = domain.User{ID: identity.UserID, Name: domain.FallbackDisplayName}
		p.log.Warn("Sender lookup failed, using placeholder identity",
			"userId", identity.UserID, "err", err)
	}

	if _, err := p.rooms.FindByID(roomID); err != nil {
		p.monitor.RecordError("room_not_found")
		p.log.Warn("Room not found, dropping message", "userId", identity.UserID, "roomId", roomID)
		return
	}

	msg, file, err := p.buildMessage(identity.UserID, roomID, msgType, trimmed, fileRef)
	if err != nil {
		p.monitor.RecordError("bad_file")
		p.log.Warn("Message build failed, dropping", "roomId", roomID, "err", err)
		return
	}
	if msg == nil {
		// Empty text message, nothing to persist
		return
	}

	if err := p.messages.Save(*msg); err != nil {
		p.monitor.RecordError("persist_failed")
		p.log.Error("Message persistence failed", "roomId", roomID, "err", err)
		return
	}

	if err := p.recent.Increment(ctx, roomID); err != nil {
		// Presence counter is approximate by contract, never blocks the flow
		p.monitor.RecordError("recent_count_failed")
		p.log.Warn("Recent message count update failed", "roomId", roomID, "err", err)
	}

	p.log.Info("Message broadcast",
		"roomId", roomID, "senderId", identity.UserID,
		"messageId", msg.ID, "type", msg.Type)

	payload := event.NewMessagePayload(*msg, sender, file)
	if err := p.fabric.Broadcast(ctx, roomID, event.Message, payload); err != nil {
		p.monitor.RecordError("broadcast_failed")
		p.log.Error("Broadcast failed", "roomId", roomID, "err", err)
		return
	}

	// Side effects are isolated: a failure here never affects the message
	// that was already broadcast.
	if len(msg.Mentions) > 0 {
		if err := p.mentions.Notify(ctx, roomID, identity.UserID, msg.Mentions); err != nil {
			p.monitor.RecordError("mention_failed")
			p.log.Warn("Mention dispatch failed", "roomId", roomID, "err", err)
		}
	}
	if err := p.sessions.TouchLastActivity(ctx, identity.UserID); err != nil {
		p.monitor.RecordError("last_activity_failed")
		p.log.Warn("Last activity touch failed", "userId", identity.UserID, "err", err)
	}

	p.monitor.RecordMessage()
}

func (p *Pipeline) buildMessage(senderID, roomID string, msgType domain.MessageType,
	trimmed string, fileRef *event.FileRef) (*domain.ChatMessage, *domain.File, error) {
	switch msgType {
	case domain.MessageTypeFile:
		return p.buildFileMessage(senderID, roomID, trimmed, fileRef)
	default:
		if trimmed == "" {
			return nil, nil, nil
		}
		msg := newMessage(senderID, roomID, domain.MessageTypeText, trimmed)
		return msg, nil, nil
	}
}

func (p *Pipeline) buildFileMessage(senderID, roomID, trimmed string,
	fileRef *event.FileRef) (*domain.ChatMessage, *domain.File, error) {
	if fileRef == nil || fileRef.ID == "" {
		return nil, nil, fmt.Errorf("file message without file reference")
	}
	file, err := p.files.FindByID(fileRef.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("file %s lookup: %w", fileRef.ID, err)
	}
	if file.UserID != senderID {
		return nil, nil, fmt.Errorf("file %s does not belong to sender %s", fileRef.ID, senderID)
	}

	msg := newMessage(senderID, roomID, domain.MessageTypeFile, trimmed)
	msg.FileID = file.ID
	msg.Metadata = map[string]any{
		"fileType":     file.Mimetype,
		"fileSize":     file.Size,
		"originalName": file.OriginalName,
	}
	return msg, &file, nil
}

func newMessage(senderID, roomID string, msgType domain.MessageType, trimmed string) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      msgType,
		Content:   trimmed,
		Mentions:  domain.ExtractMentions(trimmed),
		Timestamp: time.Now().UTC(),
	}
}

// reject emits the single client-visible error event for this message and
// bumps the matching classification counter.
func (p *Pipeline) reject(conn contract.Conn, class, code, message string, retryAfter int64) {
	p.monitor.RecordError(class)
	conn.SendEvent(event.Error, event.ErrorPayload{Code: code, Message: message, RetryAfter: retryAfter})
}
