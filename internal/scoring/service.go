// Package scoring fuses satellite and behavioral signals into a bounded
// credit score, explains it, and attaches a loan recommendation.
package scoring

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/policy"
	"github.com/opensource-finance/shamba/internal/yield"
)

var tracer = otel.Tracer("shamba-scoring")

// SatelliteProvider returns features for a location. It must not fail.
type SatelliteProvider interface {
	Fetch(ctx context.Context, loc domain.Location) domain.SatelliteReading
}

// BehaviorProvider returns features for a farmer identity.
type BehaviorProvider interface {
	Fetch(ctx context.Context, identity string) domain.BehaviorFeatures
}

// FraudAssessor scores location, crop and climate consistency.
type FraudAssessor interface {
	Assess(loc domain.Location, cropType string, sat domain.SatelliteFeatures) domain.FraudAssessment
}

// Service runs one scoring invocation end to end. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	satellite SatelliteProvider
	behavior  BehaviorProvider
	fraud     FraudAssessor
	now       func() time.Time
}

// NewService creates a scoring service.
func NewService(satellite SatelliteProvider, behavior BehaviorProvider, fraud FraudAssessor) *Service {
	return &Service{
		satellite: satellite,
		behavior:  behavior,
		fraud:     fraud,
		now:       time.Now,
	}
}

// Score validates req, gathers features concurrently and returns the result.
// Validation failures wrap domain.ErrInvalidInput. A cancelled context
// returns ctx.Err() and no partial result.
func (s *Service) Score(ctx context.Context, req domain.ScoreRequest) (*domain.CreditScore, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalize()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "scoring.score", trace.WithAttributes(requestAttributes(req)...))
	defer span.End()

	var (
		reading  domain.SatelliteReading
		behavior domain.BehaviorFeatures
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reading = s.satellite.Fetch(gctx, req.Location)
		return nil
	})
	g.Go(func() error {
		behavior = s.behavior.Fetch(gctx, req.Identity)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sat := reading.Features
	assessment := s.fraud.Assess(req.Location, req.CropType, sat)
	estimate := yield.Estimate(sat, req.CropType, req.Acres())
	score := Fuse(sat, behavior, estimate, assessment.Score)

	result := &domain.CreditScore{
		Identity:           req.Identity,
		Score:              score,
		RiskLevel:          policy.Classify(score),
		LoanRecommendation: policy.Decide(score, assessment.Score, estimate, req.CropType),
		TopFactors:         Explain(sat, behavior),
		FraudScore:         assessment.Score,
		FraudSignals:       assessment.Signals,
		YieldEstimate:      estimate,
		Satellite:          sat,
		Behavior:           behavior,
		SatelliteFallback:  reading.Fallback,
		ScoredAt:           s.now().UTC(),
	}

	span.SetAttributes(
		attribute.Float64("score", score),
		attribute.Float64("fraud_score", assessment.Score),
		attribute.Bool("satellite.fallback", reading.Fallback),
	)

	slog.Info("farmer scored",
		"identity", req.Identity,
		"crop", req.CropType,
		"score", score,
		"risk_level", result.RiskLevel,
		"fraud_score", assessment.Score,
		"approved", result.LoanRecommendation.Approved,
		"satellite_fallback", reading.Fallback,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// requestAttributes describes a request on its span. The identity is an
// MSISDN and stays out of traces.
func requestAttributes(req domain.ScoreRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("farmer.crop", req.CropType),
		attribute.Float64("farmer.acres", req.Acres()),
	}
}
