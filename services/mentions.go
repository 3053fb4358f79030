package services

import (
	"context"
	"log/slog"
)

// MentionLogger records @mentions from admitted messages. It stands where a
// push or email dispatcher would plug in.
type MentionLogger struct {
	log *slog.Logger
}

func NewMentionLogger(log *slog.Logger) *MentionLogger {
	return &MentionLogger{log: log}
}

func (m *MentionLogger) Notify(ctx context.Context, roomID, senderID string, mentions []string) error {
	for _, name := range mentions {
		m.log.Info("User mentioned",
			"roomId", roomID, "senderId", senderID, "mention", name)
	}
	return nil
}
