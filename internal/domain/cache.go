package domain

import (
	"context"
	"time"
)

// Cache stores short-lived values such as weather series and the fixed-window
// counters behind the scoring throttle.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// IncrementCounter adds one to key and returns the new count. The window
	// opens on the first increment and the count resets when it closes.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Type string `yaml:"type"` // "memory" or "redis"

	// LocalMaxSize bounds the in-process LRU; LocalTTL caps how long it
	// mirrors a Redis value.
	LocalMaxSize int           `yaml:"localMaxSize"`
	LocalTTL     time.Duration `yaml:"localTtl"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	RedisPoolSize int    `yaml:"redisPoolSize"`

	// KeyPrefix namespaces every Redis key; defaults to "shamba:".
	KeyPrefix string `yaml:"keyPrefix"`

	// EnableTwoPhase fronts Redis with the local LRU.
	EnableTwoPhase bool `yaml:"enableTwoPhase"`
}
