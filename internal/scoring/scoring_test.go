package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/shamba/internal/behavior"
	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/policy"
)

var scenarioBehavior = domain.BehaviorFeatures{
	MpesaTxnCount90d:       30,
	USSDEngagementCount90d: 15,
	AccountAgeDays:         200,
	CooperativeMember:      true,
}

type staticSatellite domain.SatelliteReading

func (s staticSatellite) Fetch(context.Context, domain.Location) domain.SatelliteReading {
	return domain.SatelliteReading(s)
}

type blockingSatellite struct{}

func (blockingSatellite) Fetch(ctx context.Context, _ domain.Location) domain.SatelliteReading {
	<-ctx.Done()
	return domain.SatelliteReading{Features: domain.FallbackSatelliteFeatures(), Fallback: true}
}

func newTestService(t *testing.T, sat SatelliteProvider) *Service {
	t.Helper()
	engine, err := fraud.NewEngine(domain.ServiceRegion)
	if err != nil {
		t.Fatalf("failed to create fraud engine: %v", err)
	}
	return NewService(sat, behavior.Static(scenarioBehavior), engine)
}

func fallbackReading() staticSatellite {
	return staticSatellite{Features: domain.FallbackSatelliteFeatures(), Fallback: true}
}

func acres(v float64) *float64 { return &v }

func TestFuse(t *testing.T) {
	sat := domain.FallbackSatelliteFeatures()

	t.Run("Deterministic", func(t *testing.T) {
		a := Fuse(sat, scenarioBehavior, 2.4, 0.2)
		b := Fuse(sat, scenarioBehavior, 2.4, 0.2)
		if a != b {
			t.Errorf("expected identical scores, got %v and %v", a, b)
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		best := domain.SatelliteFeatures{NDVITrend90d: 10, SoilMoistureZScore: 10, Rainfall30d: 1000}
		worst := domain.SatelliteFeatures{NDVITrend90d: -10, SoilMoistureZScore: -10, DroughtFlag: true}
		if got := Fuse(best, scenarioBehavior, 100, 0); got != 1 {
			t.Errorf("expected clamp to 1, got %v", got)
		}
		if got := Fuse(worst, domain.BehaviorFeatures{}, 0, 1); got != 0 {
			t.Errorf("expected clamp to 0, got %v", got)
		}
	})

	t.Run("BaseWithNeutralInputs", func(t *testing.T) {
		if got := Fuse(domain.SatelliteFeatures{}, domain.BehaviorFeatures{}, 0, 0); got != BaseScore {
			t.Errorf("expected base score %v, got %v", BaseScore, got)
		}
	})

	t.Run("NDVITrendMonotonic", func(t *testing.T) {
		s := domain.SatelliteFeatures{}
		prev := -1.0
		for trend := -2.0; trend <= 2.0; trend += 0.05 {
			s.NDVITrend90d = trend
			got := Fuse(s, domain.BehaviorFeatures{}, 0, 0)
			if got < prev {
				t.Fatalf("score decreased from %v to %v at trend %v", prev, got, trend)
			}
			prev = got
		}
	})

	t.Run("DroughtCostsExactly015", func(t *testing.T) {
		wet := sat
		dry := sat
		dry.DroughtFlag = true
		diff := RawScore(wet, scenarioBehavior, 1, 0) - RawScore(dry, scenarioBehavior, 1, 0)
		if math.Abs(diff-DroughtPenalty) > 1e-12 {
			t.Errorf("expected drought penalty %v, got %v", DroughtPenalty, diff)
		}
	})

	t.Run("FraudLowersScore", func(t *testing.T) {
		s := domain.SatelliteFeatures{}
		clean := Fuse(s, domain.BehaviorFeatures{}, 0, 0)
		flagged := Fuse(s, domain.BehaviorFeatures{}, 0, 0.5)
		if math.Abs(clean-flagged-0.1) > 1e-12 {
			t.Errorf("expected fraud 0.5 to cost 0.1, got %v", clean-flagged)
		}
	})

	t.Run("CapsApply", func(t *testing.T) {
		beh := domain.BehaviorFeatures{USSDEngagementCount90d: 1000, MpesaTxnCount90d: 1000, AccountAgeDays: 100000}
		terms := Contributions(domain.SatelliteFeatures{Rainfall30d: 5000}, beh, 500, 0)
		want := map[string]float64{
			FactorRainfall:   RainfallCap,
			FactorUSSD:       USSDCap,
			FactorMpesa:      MpesaCap,
			FactorAccountAge: AccountAgeCap,
			FactorYield:      YieldCap,
		}
		for _, c := range terms {
			if limit, ok := want[c.Name]; ok && c.Impact != limit {
				t.Errorf("%s: expected capped impact %v, got %v", c.Name, limit, c.Impact)
			}
		}
	})
}

func TestExplain(t *testing.T) {
	t.Run("TopThreeByImpact", func(t *testing.T) {
		factors := Explain(domain.FallbackSatelliteFeatures(), scenarioBehavior)
		want := []string{FactorUSSD, FactorMpesa, FactorCooperative}
		if len(factors) != len(want) {
			t.Fatalf("expected %d factors, got %+v", len(want), factors)
		}
		for i, name := range want {
			if factors[i].Name != name {
				t.Errorf("factor %d: expected %s, got %s", i, name, factors[i].Name)
			}
		}
		if factors[0].Value != 15 || math.Abs(factors[0].Impact-0.15) > 1e-12 {
			t.Errorf("unexpected USSD factor %+v", factors[0])
		}
	})

	t.Run("NegativeImpactRanksByMagnitude", func(t *testing.T) {
		sat := domain.SatelliteFeatures{SoilMoisture: 0.05, SoilMoistureZScore: -2.5}
		factors := Explain(sat, domain.BehaviorFeatures{})
		if factors[0].Name != FactorSoilMoisture {
			t.Fatalf("expected soil moisture first, got %+v", factors)
		}
		if factors[0].Value != 0.05 || math.Abs(factors[0].Impact+0.25) > 1e-12 {
			t.Errorf("unexpected soil moisture factor %+v", factors[0])
		}
	})

	t.Run("ConsistentWithFusion", func(t *testing.T) {
		sat := domain.FallbackSatelliteFeatures()
		terms := map[string]float64{}
		for _, c := range Contributions(sat, scenarioBehavior, 0, 0) {
			terms[c.Name] = c.Impact
		}
		for _, f := range Explain(sat, scenarioBehavior) {
			if terms[f.Name] != f.Impact {
				t.Errorf("%s: explain impact %v differs from fusion %v", f.Name, f.Impact, terms[f.Name])
			}
		}
	})
}

func TestServiceScore(t *testing.T) {
	ctx := context.Background()

	t.Run("ScenarioA", func(t *testing.T) {
		svc := newTestService(t, fallbackReading())
		res, err := svc.Score(ctx, domain.ScoreRequest{
			Identity: "+254712345678",
			Location: domain.Location{Latitude: -1.29, Longitude: 36.82},
			CropType: "maize",
		})
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.FraudScore != 0 {
			t.Errorf("expected fraud score 0, got %v", res.FraudScore)
		}
		if res.Score <= BaseScore {
			t.Errorf("expected score above %v, got %v", BaseScore, res.Score)
		}
		if (res.RiskLevel == domain.RiskLow) != (res.Score >= 0.75) {
			t.Errorf("risk level %s inconsistent with score %v", res.RiskLevel, res.Score)
		}
		if res.Identity != "254712345678" {
			t.Errorf("expected normalized identity, got %s", res.Identity)
		}
		if !res.SatelliteFallback {
			t.Error("expected fallback flag to be carried")
		}
		if len(res.TopFactors) != 3 {
			t.Errorf("expected 3 top factors, got %d", len(res.TopFactors))
		}
		if res.YieldEstimate <= 0 {
			t.Errorf("expected positive yield, got %v", res.YieldEstimate)
		}
	})

	t.Run("ScenarioB", func(t *testing.T) {
		svc := newTestService(t, fallbackReading())
		res, err := svc.Score(ctx, domain.ScoreRequest{
			Identity: "254700000001",
			Location: domain.Location{Latitude: 50, Longitude: 36.82},
			CropType: "maize",
		})
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.FraudScore < 0.5 {
			t.Errorf("expected fraud score >= 0.5, got %v", res.FraudScore)
		}
		if res.FraudScore > policy.FraudGateThreshold && res.LoanRecommendation.Approved {
			t.Error("expected fraud gate to reject")
		}
	})

	t.Run("ScenarioBGated", func(t *testing.T) {
		sat := domain.FallbackSatelliteFeatures()
		sat.NDVIMean90d = 0.1
		svc := newTestService(t, staticSatellite{Features: sat})
		res, err := svc.Score(ctx, domain.ScoreRequest{
			Identity: "254700000001",
			Location: domain.Location{Latitude: 50, Longitude: 36.82},
			CropType: "maize",
		})
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.FraudScore <= policy.FraudGateThreshold {
			t.Fatalf("expected fraud score above gate, got %v", res.FraudScore)
		}
		rec := res.LoanRecommendation
		if rec.Approved || rec.Reason != policy.ReasonLocationVerification {
			t.Errorf("expected location verification rejection, got %+v", rec)
		}
	})

	t.Run("ScenarioC", func(t *testing.T) {
		sat := domain.FallbackSatelliteFeatures()
		sat.Rainfall30d = 10
		svc := newTestService(t, staticSatellite{Features: sat})
		res, err := svc.Score(ctx, domain.ScoreRequest{
			Identity:      "254700000002",
			Location:      domain.Location{Latitude: -0.5, Longitude: 37},
			CropType:      "ONION",
			FarmSizeAcres: acres(2),
		})
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		found := false
		for _, s := range res.FraudSignals {
			if s.RuleID == domain.RuleCropClimate && s.Penalty == fraud.PenaltyCropClimate {
				found = true
			}
		}
		if !found {
			t.Errorf("expected crop/climate signal, got %+v", res.FraudSignals)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		svc := newTestService(t, fallbackReading())
		cases := []domain.ScoreRequest{
			{Identity: "", Location: domain.Location{Latitude: 0, Longitude: 37}, CropType: "maize"},
			{Identity: "2547", Location: domain.Location{Latitude: 91, Longitude: 37}, CropType: "maize"},
			{Identity: "2547", Location: domain.Location{Latitude: 0, Longitude: 37}, CropType: " "},
			{Identity: "2547", Location: domain.Location{Latitude: 0, Longitude: 37}, CropType: "maize", FarmSizeAcres: acres(-1)},
		}
		for i, req := range cases {
			if _, err := svc.Score(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
			}
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		svc := newTestService(t, blockingSatellite{})
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		res, err := svc.Score(cctx, domain.ScoreRequest{
			Identity: "254700000003",
			Location: domain.Location{Latitude: -0.5, Longitude: 37},
			CropType: "beans",
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if res != nil {
			t.Error("expected no partial result")
		}
	})
}

func TestRequestAttributesOmitIdentity(t *testing.T) {
	req := domain.ScoreRequest{
		Identity: "254712345678",
		Location: domain.Location{Latitude: -0.42, Longitude: 36.95},
		CropType: "maize",
	}.Normalize()

	for _, kv := range requestAttributes(req) {
		if kv.Value.Emit() == req.Identity {
			t.Errorf("attribute %s carries the farmer identity", kv.Key)
		}
		if kv.Key == "farmer.identity" {
			t.Errorf("unexpected identity attribute")
		}
	}
}
