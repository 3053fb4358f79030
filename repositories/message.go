// Package repositories implements the persistent entity stores on BadgerDB.
// The pipeline only depends on the contract interfaces; these are the
// embedded single-binary implementations.
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type storedMessage struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"roomId"`
	SenderID  string         `json:"senderId"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	FileID    string         `json:"fileId,omitempty"`
	Mentions  []string       `json:"mentions,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// messageKey is "msg:{room}:{timestamp_padded}:{uuid}". The 19-digit zero
// padding keeps lexicographical order chronological; the UUID disambiguates
// two messages landing on the same nanosecond.
func messageKey(roomID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id))
}

func messagePrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", roomID))
}

func (m MessageRepository) Save(msg domain.ChatMessage) error {
	bytes, err := json.Marshal(storedMessage{
		ID:        msg.ID.String(),
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		FileID:    msg.FileID,
		Mentions:  msg.Mentions,
		Timestamp: msg.Timestamp,
		Metadata:  msg.Metadata,
	})
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.RoomID, msg.Timestamp, msg.ID), bytes)
	})
}

// FindByRoomBefore returns up to limit messages strictly older than before,
// newest first. Thanks to the padded timestamp in the key this is a single
// reverse prefix scan.
func (m MessageRepository) FindByRoomBefore(roomID string, before time.Time, limit int) ([]domain.ChatMessage, error) {
	var raw [][]byte
	prefix := messagePrefix(roomID)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...),
			[]byte(fmt.Sprintf("%019d", before.UnixNano()))...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, bytes := range raw {
		msg, err := toChatMessage(bytes)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CountRecentSince counts messages in the room at or after since. Keys-only
// forward scan, no value prefetch.
func (m MessageRepository) CountRecentSince(roomID string, since time.Time) (int64, error) {
	var count int64
	prefix := messagePrefix(roomID)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...),
			[]byte(fmt.Sprintf("%019d", since.UnixNano()))...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func toChatMessage(bytes []byte) (domain.ChatMessage, error) {
	var stored storedMessage
	if err := json.Unmarshal(bytes, &stored); err != nil {
		return domain.ChatMessage{}, err
	}
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		ID:        id,
		RoomID:    stored.RoomID,
		SenderID:  stored.SenderID,
		Type:      domain.MessageType(stored.Type),
		Content:   stored.Content,
		FileID:    stored.FileID,
		Mentions:  stored.Mentions,
		Timestamp: stored.Timestamp,
		Metadata:  stored.Metadata,
	}, nil
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, kind, id)
}
