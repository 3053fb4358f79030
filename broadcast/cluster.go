package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// Channel carrying room events between instances.
const clusterChannel = "chat:room-events"

// ClusterFabric extends the local fan-out with a shared pub/sub channel: a
// publish on one instance is observed and replayed to local room members on
// every other subscribed instance. Per-room delivery order matches publish
// order as observed by the transport; there is no cross-room guarantee.
type ClusterFabric struct {
	local      *LocalFabric
	rdb        redis.UniversalClient
	instanceID string
	log        *slog.Logger
}

func NewClusterFabric(local *LocalFabric, rdb redis.UniversalClient, instanceID string, log *slog.Logger) *ClusterFabric {
	return &ClusterFabric{local: local, rdb: rdb, instanceID: instanceID, log: log}
}

func (f *ClusterFabric) Join(roomID string, conn contract.Conn) {
	f.local.Join(roomID, conn)
}

func (f *ClusterFabric) Leave(roomID string, conn contract.Conn) {
	f.local.Leave(roomID, conn)
}

func (f *ClusterFabric) Members(roomID string) []string {
	return f.local.Members(roomID)
}

// Broadcast delivers locally first, then publishes for the other instances.
// A publish failure degrades to local-only delivery; it never fails the
// message that local members already received.
func (f *ClusterFabric) Broadcast(ctx context.Context, roomID, eventName string, payload any) error {
	if err := f.local.Broadcast(ctx, roomID, eventName, payload); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		f.log.Error("Room event payload not serializable, skipping publish",
			"room", roomID, "event", eventName, "err", err)
		return nil
	}
	envelope := event.Envelope{
		Origin:  f.instanceID,
		RoomID:  roomID,
		Event:   eventName,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}
	bytes, err := json.Marshal(envelope)
	if err != nil {
		return nil
	}
	if err := f.rdb.Publish(ctx, clusterChannel, bytes).Err(); err != nil {
		f.log.Warn("Cluster publish failed, delivery degraded to local fan-out",
			"room", roomID, "event", eventName, "err", err)
	}
	return nil
}

// Subscriber replays remote publishes to local room members. It runs as a
// supervised worker so a dropped Redis connection is retried.
type Subscriber struct {
	fabric *ClusterFabric
	log    *slog.Logger
}

func NewSubscriber(fabric *ClusterFabric, log *slog.Logger) *Subscriber {
	return &Subscriber{fabric: fabric, log: log}
}

func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.fabric.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	// Fail fast so the supervisor restarts us when the backend is down
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("Cluster subscriber attached", "channel", clusterChannel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.replay(ctx, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) replay(ctx context.Context, raw []byte) {
	var envelope event.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.log.Warn("Dropping malformed cluster envelope", "err", err)
		return
	}
	if envelope.Origin == s.fabric.instanceID {
		return
	}
	_ = s.fabric.local.Broadcast(ctx, envelope.RoomID, envelope.Event, envelope.Payload)
}
