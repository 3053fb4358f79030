// Package chatstore holds ephemeral chat-runtime state (presence counters,
// transient flags) behind one contract, with a single-process variant and a
// shared variant for multi-instance deployments. The variant is picked at
// composition time, never at runtime.
package chatstore

import (
	"context"
	"sync"
)

// LocalStore is the in-process variant. No TTL, exact Size.
type LocalStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewLocalStore() *LocalStore {
	return &LocalStore{entries: make(map[string]string)}
}

func (s *LocalStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *LocalStore) Size(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
