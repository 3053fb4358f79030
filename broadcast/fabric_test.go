package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

type sentEvent struct {
	name    string
	payload any
}

type fakeConn struct {
	id       string
	identity domain.SocketIdentity

	mu     sync.Mutex
	events []sentEvent
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, identity: domain.SocketIdentity{UserID: userID, ConnectionID: id}}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Identity() (domain.SocketIdentity, bool) { return c.identity, true }

func (c *fakeConn) SendEvent(name string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{name: name, payload: payload})
}

func (c *fakeConn) received() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentEvent(nil), c.events...)
}

func TestLocalFabric_RoomScopedOrderedFanout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	fabric := NewLocalFabric(slog.Default())

	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	eve := newFakeConn("c3", "eve")

	fabric.Join("r1", alice)
	fabric.Join("r1", bob)
	fabric.Join("r2", eve)

	req.NoError(fabric.Broadcast(ctx, "r1", "message", "first"))
	req.NoError(fabric.Broadcast(ctx, "r1", "message", "second"))

	for _, conn := range []*fakeConn{alice, bob} {
		events := conn.received()
		req.Len(events, 2)
		req.Equal("first", events[0].payload)
		req.Equal("second", events[1].payload)
	}
	req.Empty(eve.received(), "other rooms must not observe the event")

	fabric.Leave("r1", bob)
	req.NoError(fabric.Broadcast(ctx, "r1", "message", "third"))
	req.Len(alice.received(), 3)
	req.Len(bob.received(), 2)

	req.ElementsMatch([]string{"alice"}, fabric.Members("r1"))
}

func TestClusterFabric_ReplaysToOtherInstances(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mr := miniredis.RunT(t)
	log := slog.Default()

	newInstance := func(id string) (*ClusterFabric, *Subscriber) {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fabric := NewClusterFabric(NewLocalFabric(log), rdb, id, log)
		return fabric, NewSubscriber(fabric, log)
	}

	fabricA, subA := newInstance("instance-a")
	fabricB, subB := newInstance("instance-b")
	go func() { _ = subA.Run(ctx) }()
	go func() { _ = subB.Run(ctx) }()

	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	fabricA.Join("r1", alice)
	fabricB.Join("r1", bob)

	// Retry until both subscribers are attached; local delivery is immediate
	// so alice's count also tracks the number of publishes.
	req.Eventually(func() bool {
		req.NoError(fabricA.Broadcast(ctx, "r1", "message", map[string]string{"content": "hello"}))
		return len(bob.received()) > 0
	}, 5*time.Second, 50*time.Millisecond, "remote instance never observed the publish")

	remote := bob.received()[0]
	req.Equal("message", remote.name)
	raw, ok := remote.payload.(json.RawMessage)
	req.True(ok, "replayed payload is relayed verbatim")
	var decoded map[string]string
	req.NoError(json.Unmarshal(raw, &decoded))
	req.Equal("hello", decoded["content"])

	// Origin instance must not replay its own publish on top of the local
	// delivery: one publish, one event for alice.
	published := len(alice.received())
	req.Eventually(func() bool { return len(bob.received()) >= published }, 5*time.Second, 50*time.Millisecond)
	req.Equal(published, len(alice.received()))
}

func TestNewFabric_FallsBackToLocalWhenBackendUnreachable(t *testing.T) {
	req := require.New(t)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})

	fabric, worker := NewFabric(context.Background(), true, rdb, "instance-a", slog.Default())
	req.Nil(worker, "no subscriber without a reachable backend")
	_, isLocal := fabric.(*LocalFabric)
	req.True(isLocal, "must degrade to local fan-out, not crash startup")
}

func TestNewFabric_SingleInstanceMode(t *testing.T) {
	req := require.New(t)

	fabric, worker := NewFabric(context.Background(), false, nil, "instance-a", slog.Default())
	req.Nil(worker)
	_, isLocal := fabric.(*LocalFabric)
	req.True(isLocal)
}
