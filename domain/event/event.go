// Package event defines the application-level events exchanged with clients
// and broadcast across instances. The wire framing underneath is owned by the
// transport adapter.
package event

import (
	"encoding/json"
	"strings"
	"time"

	"chat-relay/domain"
)

// Event names on the client-facing channel.
const (
	ChatMessage        = "chatMessage"
	JoinRoom           = "joinRoom"
	LeaveRoom          = "leaveRoom"
	Message            = "message"
	Error              = "error"
	JoinRoomSuccess    = "joinRoomSuccess"
	JoinRoomError      = "joinRoomError"
	UserLeft           = "userLeft"
	ParticipantsUpdate = "participantsUpdate"
)

// Stable error codes surfaced to clients on rejection.
const (
	CodeMessageError      = "MESSAGE_ERROR"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeMessageRejected   = "MESSAGE_REJECTED"
)

// ChatMessagePayload is the inbound chatMessage body.
type ChatMessagePayload struct {
	Room        string   `json:"room" validate:"required"`
	MessageType string   `json:"messageType"`
	Content     string   `json:"content"`
	FileData    *FileRef `json:"fileData"`
}

// TrimmedContent returns the message body with surrounding whitespace removed.
func (p ChatMessagePayload) TrimmedContent() string {
	return strings.TrimSpace(p.Content)
}

// FileRef points at an already-uploaded file record.
type FileRef struct {
	ID string `json:"_id" validate:"required"`
}

// ErrorPayload is the body of every error event.
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

// SenderPayload is the resolved sender attached to a broadcast message.
type SenderPayload struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// FilePayload is the optional file metadata attached to a broadcast message.
type FilePayload struct {
	ID           string `json:"_id"`
	OriginalName string `json:"originalname"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
}

// MessagePayload is the serialized ChatMessage delivered to room members.
type MessagePayload struct {
	ID        string         `json:"_id"`
	RoomID    string         `json:"room"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Sender    SenderPayload  `json:"sender"`
	File      *FilePayload   `json:"file,omitempty"`
	Mentions  []string       `json:"mentions,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessagePayload resolves a persisted message into its broadcast form.
func NewMessagePayload(msg domain.ChatMessage, sender domain.User, file *domain.File) MessagePayload {
	payload := MessagePayload{
		ID:        msg.ID.String(),
		RoomID:    msg.RoomID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		Sender:    SenderPayload{ID: sender.ID, Name: sender.Name},
		Mentions:  msg.Mentions,
		Timestamp: msg.Timestamp.UnixMilli(),
		Metadata:  msg.Metadata,
	}
	if file != nil {
		payload.File = &FilePayload{
			ID:           file.ID,
			OriginalName: file.OriginalName,
			Mimetype:     file.Mimetype,
			Size:         file.Size,
		}
	}
	return payload
}

// JoinRoomPayload is the inbound joinRoom body. Password is only consulted
// for protected rooms.
type JoinRoomPayload struct {
	Room     string `json:"room" validate:"required"`
	Password string `json:"password"`
}

// RoomEventPayload is shared by joinRoomSuccess, userLeft and
// participantsUpdate notifications.
type RoomEventPayload struct {
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId,omitempty"`
	Participants []string `json:"participants,omitempty"`
	At           int64    `json:"at,omitempty"`
}

// Envelope is the frame relayed over the cross-instance pub/sub channel.
// Origin lets subscribers skip their own publishes.
type Envelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"roomId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}
