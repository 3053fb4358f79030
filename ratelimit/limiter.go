// Package ratelimit implements per-identity fixed-window admission control
// on top of the shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
)

type Limiter struct {
	store contract.CounterStore
	log   *slog.Logger
}

func NewLimiter(store contract.CounterStore, log *slog.Logger) *Limiter {
	return &Limiter{store: store, log: log}
}

// Check admits or rejects one request for identity against maxRequests per
// window. When the counter store is unreachable the limiter fails open with
// the full quota: chat availability wins over strict enforcement during
// infrastructure degradation.
func (l *Limiter) Check(ctx context.Context, identity string, maxRequests int64, window time.Duration) domain.RateLimitDecision {
	windowSeconds := int64(window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	now := time.Now()

	// The window length is part of the key so a quota reconfiguration between
	// deployments never mixes counts. No host component: quota is shared
	// cluster-wide.
	key := fmt.Sprintf("rl:%d:%s", windowSeconds, identity)

	count, ttl, err := l.store.IncrementAndGetTTL(ctx, key, window)
	if err != nil {
		l.log.Error("Rate limit check failed, failing open", "identity", identity, "err", err)
		return domain.RateLimitDecision{
			Allowed:       true,
			Limit:         maxRequests,
			Remaining:     maxRequests,
			WindowSeconds: windowSeconds,
			ResetAt:       now.Add(time.Duration(windowSeconds) * time.Second),
		}
	}

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	resetAt := now.Add(time.Duration(ttlSeconds) * time.Second)

	if count > maxRequests {
		return domain.RateLimitDecision{
			Allowed:           false,
			Limit:             maxRequests,
			Remaining:         0,
			WindowSeconds:     windowSeconds,
			ResetAt:           resetAt,
			RetryAfterSeconds: ttlSeconds,
		}
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:       true,
		Limit:         maxRequests,
		Remaining:     remaining,
		WindowSeconds: windowSeconds,
		ResetAt:       resetAt,
	}
}
