package satellite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/shamba/internal/domain"
)

var tracer = otel.Tracer("shamba-satellite")

// Provider fetches and derives satellite features. Upstream failures never
// reach the caller: any error resolves to domain.FallbackSatelliteFeatures.
type Provider struct {
	source     Source
	windowDays int
	timeout    time.Duration
	now        func() time.Time
}

// NewProvider creates a provider over source with the configured window and
// timeout.
func NewProvider(source Source, cfg domain.SatelliteConfig) *Provider {
	window := cfg.WindowDays
	if window <= 0 {
		window = 90
	}
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > domain.MaxSatelliteTimeout {
		timeout = domain.MaxSatelliteTimeout
	}
	return &Provider{
		source:     source,
		windowDays: window,
		timeout:    timeout,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock used to anchor the window.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Fetch returns the feature set for loc over the trailing window.
func (p *Provider) Fetch(ctx context.Context, loc domain.Location) domain.SatelliteReading {
	ctx, span := tracer.Start(ctx, "satellite.fetch",
		trace.WithAttributes(
			attribute.Float64("location.latitude", loc.Latitude),
			attribute.Float64("location.longitude", loc.Longitude),
		),
	)
	defer span.End()

	if p.source == nil {
		span.SetAttributes(attribute.Bool("satellite.fallback", true))
		return domain.SatelliteReading{Features: domain.FallbackSatelliteFeatures(), Fallback: true}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	end := p.now().UTC()
	start := end.AddDate(0, 0, -p.windowDays)

	series, err := p.source.DailySeries(ctx, loc, start, end)
	if err == nil {
		var features domain.SatelliteFeatures
		features, err = Derive(series)
		if err == nil {
			span.SetAttributes(attribute.Bool("satellite.fallback", false))
			return domain.SatelliteReading{Features: features}
		}
	}

	slog.Warn("satellite data unavailable, using fallback features",
		"latitude", loc.Latitude,
		"longitude", loc.Longitude,
		"error", err,
	)
	span.SetAttributes(attribute.Bool("satellite.fallback", true))
	span.RecordError(err)

	return domain.SatelliteReading{Features: domain.FallbackSatelliteFeatures(), Fallback: true}
}

// Offline is a Source that always fails, forcing the fallback feature set.
type Offline struct{}

// DailySeries implements Source.
func (Offline) DailySeries(ctx context.Context, loc domain.Location, start, end time.Time) (*Series, error) {
	return nil, errOffline
}

var errOffline = errors.New("satellite source disabled (offline mode)")
