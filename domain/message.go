// Package domain contains core concepts of the chat pipeline.
// Messages are immutable once persisted; the pipeline builds them and
// hands them off to the message store.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// NormalizeMessageType maps a client-supplied type to a supported one.
// Unrecognized values fall back to text instead of rejecting the message.
func NormalizeMessageType(raw string) MessageType {
	switch MessageType(raw) {
	case MessageTypeText, MessageTypeFile:
		return MessageType(raw)
	default:
		return MessageTypeText
	}
}

// ChatMessage represents one admitted chat event.
type ChatMessage struct {
	ID        uuid.UUID
	RoomID    string
	SenderID  string
	Type      MessageType
	Content   string
	FileID    string
	Mentions  []string
	Timestamp time.Time
	Metadata  map[string]any
}

// ExtractMentions collects unique @name tokens from a message body.
// Order of first appearance is preserved.
func ExtractMentions(content string) []string {
	var mentions []string
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(content) {
		if !strings.HasPrefix(field, "@") || len(field) < 2 {
			continue
		}
		name := strings.TrimRight(field[1:], ".,!?:;")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		mentions = append(mentions, name)
	}
	return mentions
}
