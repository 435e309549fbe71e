package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	cache, clock := newClockedLRU(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "power:-1.2921:36.8219", []byte("series"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "power:-1.2921:36.8219")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "series" {
			t.Errorf("expected 'series', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.Advance(11 * time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the oldest.
		_, _ = small.Get(ctx, "a")

		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Hour

		count1, err := cache.IncrementCounter(ctx, "score:254712345678", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		if count2, _ := cache.IncrementCounter(ctx, "score:254712345678", window); count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		if other, _ := cache.IncrementCounter(ctx, "score:254700000000", window); other != 1 {
			t.Errorf("expected independent counter, got %d", other)
		}

		clock.Advance(window + time.Second)

		if count3, _ := cache.IncrementCounter(ctx, "score:254712345678", window); count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats := NewLRUCache(50)
		_ = stats.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = stats.Set(ctx, "k2", []byte("v2"), time.Minute)

		_, _ = stats.Get(ctx, "k1")
		_, _ = stats.Get(ctx, "missing")

		got := stats.Stats()
		if got.Entries != 2 || got.Capacity != 50 {
			t.Errorf("expected 2/50 entries, got %d/%d", got.Entries, got.Capacity)
		}
		if got.Hits != 1 || got.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %d/%d", got.Hits, got.Misses)
		}
	})

	t.Run("EvictionCount", func(t *testing.T) {
		small := NewLRUCache(2)
		for _, k := range []string{"a", "b", "c", "d"} {
			_ = small.Set(ctx, k, []byte(k), time.Minute)
		}
		if got := small.Stats().Evictions; got != 2 {
			t.Errorf("expected 2 evictions, got %d", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "k", []byte("v"), time.Minute)

		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	remote := NewLRUCache(100)
	c := newTwoPhase(NewLRUCache(10), remote, time.Minute)

	t.Run("WritesBothLevels", func(t *testing.T) {
		if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := remote.Get(ctx, "k"); string(val) != "v" {
			t.Errorf("expected value in L2, got %q", val)
		}
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		_ = remote.Set(ctx, "only-remote", []byte("r"), time.Hour)

		val, err := c.Get(ctx, "only-remote")
		if err != nil || string(val) != "r" {
			t.Fatalf("expected L2 hit, got %q, %v", val, err)
		}
		if val, _ := c.local.Get(ctx, "only-remote"); string(val) != "r" {
			t.Error("expected L1 to be populated")
		}
	})

	t.Run("DeleteBothLevels", func(t *testing.T) {
		_ = c.Delete(ctx, "k")
		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("CountersUseL2", func(t *testing.T) {
		_, _ = c.IncrementCounter(ctx, "n", time.Minute)
		n, _ := remote.IncrementCounter(ctx, "n", time.Minute)
		if n != 2 {
			t.Errorf("expected shared L2 counter 2, got %d", n)
		}
	})
}

// downCache fails every remote operation.
type downCache struct{ *LRUCache }

var errDown = errors.New("connection refused")

func (downCache) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (downCache) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errDown
}
func (downCache) Ping(context.Context) error { return errDown }

func TestTwoPhaseCacheRemoteDown(t *testing.T) {
	ctx := context.Background()
	c := newTwoPhase(NewLRUCache(10), downCache{NewLRUCache(10)}, time.Minute)

	t.Run("ReadIsMiss", func(t *testing.T) {
		val, err := c.Get(ctx, "power:0.5:36.8")
		if err != nil || val != nil {
			t.Errorf("expected silent miss, got %q, %v", val, err)
		}
	})

	t.Run("CountersFallBackLocally", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := c.IncrementCounter(ctx, "score:254712345678", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if n != want {
				t.Errorf("expected local count %d, got %d", want, n)
			}
		}
	})

	t.Run("PingReportsRemote", func(t *testing.T) {
		if err := c.Ping(ctx); !errors.Is(err, errDown) {
			t.Errorf("expected remote ping error, got %v", err)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
