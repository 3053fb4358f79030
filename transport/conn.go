// Package transport adapts WebSocket connections to the pipeline's
// connection contract and routes inbound events to their handlers.
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/domain"
)

const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsConn wraps one WebSocket connection. All writes go through a single
// writer goroutine; SendEvent never blocks on a slow peer, it drops instead.
type wsConn struct {
	id        string
	identity  domain.SocketIdentity
	sock      *websocket.Conn
	writeCh   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func newConn(sock *websocket.Conn, identity domain.SocketIdentity, log *slog.Logger) *wsConn {
	c := &wsConn{
		id:       identity.ConnectionID,
		identity: identity,
		sock:     sock,
		writeCh:  make(chan []byte, writeBuffer),
		done:     make(chan struct{}),
		log:      log,
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Identity() (domain.SocketIdentity, bool) {
	if c.identity.UserID == "" {
		return domain.SocketIdentity{}, false
	}
	return c.identity, true
}

// SendEvent marshals and queues one outbound frame. A full write buffer means
// the peer is not keeping up; the frame is dropped rather than blocking the
// pipeline.
func (c *wsConn) SendEvent(eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("Outbound payload marshal failed", "event", eventName, "err", err)
		return
	}
	frame, err := json.Marshal(Frame{Event: eventName, Data: data})
	if err != nil {
		c.log.Error("Outbound frame marshal failed", "event", eventName, "err", err)
		return
	}

	select {
	case c.writeCh <- frame:
	case <-c.done:
	default:
		c.log.Warn("Write buffer full, dropping frame",
			"connId", c.id, "event", eventName)
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.writeCh:
			if err := c.sock.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}
