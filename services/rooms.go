package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
)

const defaultHistoryLimit = 50

// RoomService owns the room membership flows around the ingestion path:
// joining, leaving and history reads.
type RoomService struct {
	rooms    contract.RoomStore
	users    contract.UserStore
	messages contract.MessageStore
	fabric   contract.Broadcaster
	log      *slog.Logger
}

func NewRoomService(rooms contract.RoomStore, users contract.UserStore,
	messages contract.MessageStore, fabric contract.Broadcaster, log *slog.Logger) *RoomService {
	return &RoomService{
		rooms:    rooms,
		users:    users,
		messages: messages,
		fabric:   fabric,
		log:      log,
	}
}

// Create persists a new room with its creator as first participant.
func (s *RoomService) Create(roomID, name, creatorID, password string) (domain.Room, error) {
	room, err := s.rooms.Create(domain.Room{
		ID:             roomID,
		Name:           name,
		Creator:        creatorID,
		ParticipantIDs: []string{creatorID},
	}, password)
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "roomId", room.ID, "creatorId", creatorID,
		"protected", room.HasPassword)
	return room, nil
}

// Join registers the connection in the room and tells everyone. A wrong
// password or an unknown room answers only the caller.
func (s *RoomService) Join(ctx context.Context, conn contract.Conn, payload event.JoinRoomPayload) {
	identity, ok := conn.Identity()
	if !ok {
		conn.SendEvent(event.JoinRoomError, event.ErrorPayload{
			Code: event.CodeSessionExpired, Message: "session expired, sign in again"})
		return
	}
	if payload.Room == "" {
		conn.SendEvent(event.JoinRoomError, event.ErrorPayload{
			Code: event.CodeMessageError, Message: "roomId is not valid"})
		return
	}

	room, err := s.rooms.AddParticipant(payload.Room, identity.UserID, payload.Password)
	if err != nil {
		s.log.Warn("Join refused", "roomId", payload.Room, "userId", identity.UserID, "err", err)
		conn.SendEvent(event.JoinRoomError, joinErrorPayload(err))
		return
	}

	s.fabric.Join(room.ID, conn)
	conn.SendEvent(event.JoinRoomSuccess, event.RoomEventPayload{
		RoomID:       room.ID,
		UserID:       identity.UserID,
		Participants: room.ParticipantIDs,
		At:           time.Now().UnixMilli(),
	})

	s.log.Info("User joined room", "roomId", room.ID, "userId", identity.UserID)
	s.notifyParticipants(ctx, room.ID)
}

// Leave detaches the connection from the room fanout and tells the room.
// Persistent membership is untouched; leaving a room is a connection event.
func (s *RoomService) Leave(ctx context.Context, conn contract.Conn, roomID string) {
	identity, ok := conn.Identity()
	if !ok || roomID == "" {
		return
	}

	s.fabric.Leave(roomID, conn)
	s.log.Info("User left room", "roomId", roomID, "userId", identity.UserID)

	if err := s.fabric.Broadcast(ctx, roomID, event.UserLeft, event.RoomEventPayload{
		RoomID: roomID,
		UserID: identity.UserID,
		At:     time.Now().UnixMilli(),
	}); err != nil {
		s.log.Warn("Leave notification failed", "roomId", roomID, "err", err)
	}
	s.notifyParticipants(ctx, roomID)
}

// History returns up to limit messages older than before, newest first, with
// sender identities resolved.
func (s *RoomService) History(ctx context.Context, roomID string, before time.Time, limit int) ([]event.MessagePayload, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}

	messages, err := s.messages.FindByRoomBefore(roomID, before, limit)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]domain.User, len(messages))
	payloads := make([]event.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		sender, ok := senders[msg.SenderID]
		if !ok {
			sender, err = s.users.FindByID(msg.SenderID)
			if err != nil {
				sender = domain.User{ID: msg.SenderID, Name: domain.FallbackDisplayName}
			}
			senders[msg.SenderID] = sender
		}
		payloads = append(payloads, event.NewMessagePayload(msg, sender, nil))
	}
	return payloads, nil
}

// notifyParticipants pushes the live member list to everyone in the room.
func (s *RoomService) notifyParticipants(ctx context.Context, roomID string) {
	if err := s.fabric.Broadcast(ctx, roomID, event.ParticipantsUpdate, event.RoomEventPayload{
		RoomID:       roomID,
		Participants: s.fabric.Members(roomID),
		At:           time.Now().UnixMilli(),
	}); err != nil {
		s.log.Warn("Participants update failed", "roomId", roomID, "err", err)
	}
}

func joinErrorPayload(err error) event.ErrorPayload {
	switch {
	case errors.Is(err, apperrors.ErrBadPassword):
		return event.ErrorPayload{Code: event.CodeMessageRejected, Message: "wrong room password"}
	case errors.Is(err, apperrors.ErrNotFound):
		return event.ErrorPayload{Code: event.CodeMessageError, Message: "room not found"}
	default:
		return event.ErrorPayload{Code: event.CodeMessageError, Message: "join failed, retry later"}
	}
}
