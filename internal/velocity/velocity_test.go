package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/shamba/internal/cache"
	"github.com/opensource-finance/shamba/internal/domain"
)

type failingCache struct {
	domain.Cache
}

func (failingCache) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func TestLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("AllowsUpToMax", func(t *testing.T) {
		lim := NewLimiter(cache.NewLRUCache(100), domain.VelocityConfig{MaxRequests: 3, Window: time.Hour})

		for i := 0; i < 3; i++ {
			if err := lim.Allow(ctx, "254712345678"); err != nil {
				t.Fatalf("request %d: unexpected error %v", i+1, err)
			}
		}

		err := lim.Allow(ctx, "+254712345678")
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited for normalized identity, got %v", err)
		}
	})

	t.Run("IdentitiesAreIndependent", func(t *testing.T) {
		lim := NewLimiter(cache.NewLRUCache(100), domain.VelocityConfig{MaxRequests: 1, Window: time.Hour})

		if err := lim.Allow(ctx, "254700000001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := lim.Allow(ctx, "254700000002"); err != nil {
			t.Errorf("second identity should not be limited: %v", err)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		lim := NewLimiter(cache.NewLRUCache(100), domain.VelocityConfig{MaxRequests: 0})
		if lim.Enabled() {
			t.Error("expected limiter to be disabled")
		}
		for i := 0; i < 50; i++ {
			if err := lim.Allow(ctx, "254712345678"); err != nil {
				t.Fatalf("disabled limiter returned %v", err)
			}
		}

		var nilLimiter *Limiter
		if err := nilLimiter.Allow(ctx, "x"); err != nil {
			t.Errorf("nil limiter returned %v", err)
		}
	})

	t.Run("FailsOpen", func(t *testing.T) {
		lim := NewLimiter(failingCache{}, domain.VelocityConfig{MaxRequests: 1, Window: time.Hour})
		for i := 0; i < 3; i++ {
			if err := lim.Allow(ctx, "254712345678"); err != nil {
				t.Fatalf("expected fail-open, got %v", err)
			}
		}
	})
}
