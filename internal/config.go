package internal

import (
	"fmt"
	"os"
	"time"
)

// Chat store variants, picked at composition time.
const (
	ChatStoreLocal  = "local"
	ChatStoreShared = "shared"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	InstanceID     string `env:"INSTANCE_ID"`
	DebugPort      int    `env:"DEBUG_PORT"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	ClusterEnabled bool   `env:"CLUSTER_ENABLED,required=true"`

	ChatStoreType string        `env:"CHAT_STORE_TYPE,required=true"`
	ChatStoreTTL  time.Duration `env:"CHAT_STORE_TTL,required=true"`

	SessionTTL        time.Duration `env:"SESSION_TTL,required=true"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	RateLimitMax     int64         `env:"RATE_LIMIT_MAX,required=true"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW,required=true"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,required=true"`

	PoolSize       int           `env:"POOL_SIZE,required=true"`
	QueueDepth     int           `env:"QUEUE_DEPTH,required=true"`
	RecentWindow   time.Duration `env:"RECENT_WINDOW,required=true"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL,required=true"`
}

// Validate rejects values the composition root cannot work with.
func (c Config) Validate() error {
	if c.ChatStoreType != ChatStoreLocal && c.ChatStoreType != ChatStoreShared {
		return fmt.Errorf("CHAT_STORE_TYPE must be %q or %q, got %q",
			ChatStoreLocal, ChatStoreShared, c.ChatStoreType)
	}
	if c.ChatStoreType == ChatStoreShared && c.RedisAddr == "" {
		return fmt.Errorf("CHAT_STORE_TYPE=%s requires REDIS_ADDR", ChatStoreShared)
	}
	if c.ClusterEnabled && c.RedisAddr == "" {
		return fmt.Errorf("CLUSTER_ENABLED requires REDIS_ADDR")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	return nil
}

// Instance returns the configured instance identifier, falling back to the
// hostname so cross-instance replay dedup works out of the box.
func (c Config) Instance() string {
	if c.InstanceID != "" {
		return c.InstanceID
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "chat-relay"
	}
	return hostname
}
