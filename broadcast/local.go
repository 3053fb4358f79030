// Package broadcast delivers room-scoped events to every subscribed
// connection, across all server instances when clustered.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
)

type connSet map[string]contract.Conn

// LocalFabric is the single-instance fan-out: in-process room membership,
// synchronous delivery, ordered per room by call order.
type LocalFabric struct {
	mu    sync.RWMutex
	rooms map[string]connSet
	log   *slog.Logger
}

func NewLocalFabric(log *slog.Logger) *LocalFabric {
	return &LocalFabric{rooms: make(map[string]connSet), log: log}
}

func (f *LocalFabric) Join(roomID string, conn contract.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[roomID]; !ok {
		f.rooms[roomID] = make(connSet)
	}
	f.rooms[roomID][conn.ID()] = conn
}

// Leave removes the connection from the room. Empty member sets are cleaned
// up so stale rooms never accumulate.
func (f *LocalFabric) Leave(roomID string, conn contract.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if members, ok := f.rooms[roomID]; ok {
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(f.rooms, roomID)
		}
	}
}

func (f *LocalFabric) Broadcast(_ context.Context, roomID, eventName string, payload any) error {
	f.mu.RLock()
	members := f.rooms[roomID]
	conns := make([]contract.Conn, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	f.mu.RUnlock()

	for _, conn := range conns {
		conn.SendEvent(eventName, payload)
	}
	return nil
}

// Members lists the user ids currently joined to the room on this instance.
func (f *LocalFabric) Members(roomID string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var users []string
	for _, conn := range f.rooms[roomID] {
		if identity, ok := conn.Identity(); ok {
			users = append(users, identity.UserID)
		}
	}
	return users
}
