// Package session consults the external session system. Transient failures
// here must never silently discard chat traffic; the soft-fail policy lives
// in the pipeline.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "chat-relay/errors"
)

const keyPrefix = "session:user:"

// Record is the stored session document.
type Record struct {
	SessionID    string    `json:"sessionId"`
	LastActivity time.Time `json:"lastActivity"`
}

type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
	log *slog.Logger
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, log: log}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Validate reports whether authSessionID matches the session currently stored
// for userID. A missing session is invalid, not an error.
func (s *RedisStore) Validate(ctx context.Context, userID, authSessionID string) (bool, error) {
	raw, err := s.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.log.Warn("Corrupt session record", "userId", userID, "err", err)
		return false, nil
	}
	return record.SessionID == authSessionID, nil
}

// TouchLastActivity refreshes the session TTL and stamps the last activity.
// A missing session is a no-op.
func (s *RedisStore) TouchLastActivity(ctx context.Context, userID string) error {
	raw, err := s.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil
	}
	record.LastActivity = time.Now().UTC()

	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(userID), bytes, s.ttl).Err()
}

// Save stores a fresh session for userID, replacing any previous one.
func (s *RedisStore) Save(ctx context.Context, userID, sessionID string) error {
	bytes, err := json.Marshal(Record{SessionID: sessionID, LastActivity: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(userID), bytes, s.ttl).Err()
}
