package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-relay/contract"
)

const probeTimeout = 2 * time.Second

// NewFabric picks the fan-out strategy at composition time. When clustering
// is requested but the pub/sub backend does not answer, the fabric falls back
// to single-instance local fan-out with a warning: multi-instance delivery
// stays incomplete until the dependency is restored, but startup never fails.
func NewFabric(ctx context.Context, clusterEnabled bool, rdb redis.UniversalClient, instanceID string, log *slog.Logger) (contract.Broadcaster, contract.Worker) {
	local := NewLocalFabric(log)
	if !clusterEnabled {
		log.Info("Broadcast fabric: local fan-out (single-instance mode)")
		return local, nil
	}
	if rdb == nil {
		log.Warn("Clustering enabled but no shared store configured, falling back to local fan-out")
		return local, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := rdb.Ping(probeCtx).Err(); err != nil {
		log.Warn("Clustering enabled but pub/sub backend unreachable, falling back to local fan-out", "err", err)
		return local, nil
	}

	log.Info("Broadcast fabric: clustered fan-out", "instance", instanceID, "channel", clusterChannel)
	fabric := NewClusterFabric(local, rdb, instanceID, log)
	return fabric, NewSubscriber(fabric, log)
}
