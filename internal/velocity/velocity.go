// Package velocity throttles scoring requests per farmer identity.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

// ErrRateLimited is returned when an identity exceeds its window budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter counts scoring requests per normalized identity in a fixed window
// using the shared cache counters.
type Limiter struct {
	cache       domain.Cache
	maxRequests int
	window      time.Duration
}

// NewLimiter creates a limiter. maxRequests of 0 disables limiting.
func NewLimiter(cache domain.Cache, cfg domain.VelocityConfig) *Limiter {
	return &Limiter{
		cache:       cache,
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cache != nil && l.maxRequests > 0 && l.window > 0
}

// Allow records one request for identity and returns ErrRateLimited once
// the window budget is spent. Counter failures are logged and let through.
func (l *Limiter) Allow(ctx context.Context, identity string) error {
	if !l.Enabled() {
		return nil
	}

	id := domain.NormalizeIdentity(identity)
	count, err := l.cache.IncrementCounter(ctx, counterKey(id), l.window)
	if err != nil {
		slog.Warn("velocity counter unavailable, allowing request",
			"identity", id,
			"error", err,
		)
		return nil
	}

	if count > int64(l.maxRequests) {
		return fmt.Errorf("%w: %d requests for %s in %s (max %d)", ErrRateLimited, count, id, l.window, l.maxRequests)
	}
	return nil
}

func counterKey(identity string) string {
	return "velocity:score:" + identity
}
