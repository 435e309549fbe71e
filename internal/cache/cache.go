package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Backend names accepted in CacheConfig.Type.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const defaultLocalTTL = 5 * time.Minute

// New creates the cache selected by cfg.Type. The redis backend is fronted
// by a local LRU when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case BackendMemory, "":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case BackendRedis:
		remote, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %q", cfg.Type)
	}
}

// TwoPhaseCache serves reads from a local LRU before falling through to a
// shared remote cache.
//
// Remote read failures are reported as misses. Counter failures fall back to
// the local LRU, so throttling becomes per node while the remote is down.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   domain.Cache
	localTTL time.Duration
}

func newTwoPhase(local *LRUCache, remote domain.Cache, localTTL time.Duration) *TwoPhaseCache {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &TwoPhaseCache{local: local, remote: remote, localTTL: localTTL}
}

// Get checks the LRU, then the remote, copying remote hits into the LRU.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := c.local.Get(ctx, key); val != nil {
		return val, nil
	}

	val, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "remote cache read failed", "key", key, "error", err)
		return nil, nil
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes both levels. The local copy never outlives the remote one.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = c.local.Set(ctx, key, value, min(ttl, c.localTTL))
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes key from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.remote.Delete(ctx, key)
}

// IncrementCounter counts on the remote so nodes agree, falling back to the
// local window when the remote fails.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, key string, d time.Duration) (int64, error) {
	n, err := c.remote.IncrementCounter(ctx, key, d)
	if err == nil {
		return n, nil
	}
	slog.WarnContext(ctx, "remote counter failed, counting locally", "key", key, "error", err)
	return c.local.IncrementCounter(ctx, key, d)
}

// Ping reports remote health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote cache: %w", err)
	}
	return nil
}

// Close releases both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local level.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
