package satellite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

// CachedSource stores raw upstream series in a cache. Features are still
// derived on every call; only the network round trip is saved.
type CachedSource struct {
	next  Source
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedSource wraps next. A zero ttl or nil cache returns next unchanged.
func NewCachedSource(next Source, cache domain.Cache, ttl time.Duration) Source {
	if cache == nil || ttl <= 0 {
		return next
	}
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

// DailySeries implements Source.
func (c *CachedSource) DailySeries(ctx context.Context, loc domain.Location, start, end time.Time) (*Series, error) {
	key := seriesKey(loc, start, end)

	if data, err := c.cache.Get(ctx, key); err != nil {
		slog.Debug("series cache read failed", "key", key, "error", err)
	} else if data != nil {
		var s Series
		if err := json.Unmarshal(data, &s); err == nil {
			return &s, nil
		}
	}

	s, err := c.next.DailySeries(ctx, loc, start, end)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Debug("series cache write failed", "key", key, "error", err)
		}
	}
	return s, nil
}

func seriesKey(loc domain.Location, start, end time.Time) string {
	return fmt.Sprintf("power:%.4f:%.4f:%s:%s",
		loc.Latitude, loc.Longitude,
		start.Format("20060102"), end.Format("20060102"),
	)
}
