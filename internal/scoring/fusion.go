package scoring

import (
	"math"

	"github.com/opensource-finance/shamba/internal/domain"
)

// BaseScore is the neutral starting point of every fused score.
const BaseScore = 0.5

// Fusion weights. These are fixed; changing one changes every score.
const (
	WeightNDVITrend      = 0.15
	WeightMoistureZScore = 0.10
	RainfallDivisor      = 1000.0
	RainfallCap          = 0.15
	DroughtPenalty       = 0.15
	USSDDivisor          = 100.0
	USSDCap              = 0.15
	MpesaDivisor         = 200.0
	MpesaCap             = 0.10
	CooperativeBonus     = 0.10
	AccountAgeDivisor    = 3650.0
	AccountAgeCap        = 0.05
	YieldDivisor         = 20.0
	YieldCap             = 0.10
	WeightFraud          = 0.20
)

// Contribution names.
const (
	FactorNDVITrend    = "NDVI Trend"
	FactorSoilMoisture = "Soil Moisture"
	FactorRainfall     = "Rainfall"
	FactorDrought      = "Drought"
	FactorUSSD         = "USSD Engagement"
	FactorMpesa        = "M-Pesa Activity"
	FactorCooperative  = "Cooperative Member"
	FactorAccountAge   = "Account Age"
	FactorYield        = "Yield Estimate"
	FactorFraud        = "Fraud Score"
)

// Contributions returns every additive term of the fused score in
// summation order.
func Contributions(sat domain.SatelliteFeatures, beh domain.BehaviorFeatures, yieldEstimate, fraudScore float64) []domain.Contribution {
	drought := 0.0
	if sat.DroughtFlag {
		drought = -DroughtPenalty
	}

	return []domain.Contribution{
		{Name: FactorNDVITrend, Value: sat.NDVITrend90d, Impact: WeightNDVITrend * sat.NDVITrend90d},
		{Name: FactorSoilMoisture, Value: sat.SoilMoisture, Impact: WeightMoistureZScore * sat.SoilMoistureZScore},
		{Name: FactorRainfall, Value: sat.Rainfall30d, Impact: math.Min(RainfallCap, sat.Rainfall30d/RainfallDivisor)},
		{Name: FactorDrought, Value: boolValue(sat.DroughtFlag), Impact: drought},
		{Name: FactorUSSD, Value: float64(beh.USSDEngagementCount90d), Impact: math.Min(USSDCap, float64(beh.USSDEngagementCount90d)/USSDDivisor)},
		{Name: FactorMpesa, Value: float64(beh.MpesaTxnCount90d), Impact: math.Min(MpesaCap, float64(beh.MpesaTxnCount90d)/MpesaDivisor)},
		{Name: FactorCooperative, Value: boolValue(beh.CooperativeMember), Impact: CooperativeBonus * boolValue(beh.CooperativeMember)},
		{Name: FactorAccountAge, Value: float64(beh.AccountAgeDays), Impact: math.Min(AccountAgeCap, float64(beh.AccountAgeDays)/AccountAgeDivisor)},
		{Name: FactorYield, Value: yieldEstimate, Impact: math.Min(YieldCap, yieldEstimate/YieldDivisor)},
		{Name: FactorFraud, Value: fraudScore, Impact: -WeightFraud * fraudScore},
	}
}

// Fuse combines the feature sets into a score in [0, 1].
func Fuse(sat domain.SatelliteFeatures, beh domain.BehaviorFeatures, yieldEstimate, fraudScore float64) float64 {
	return clampUnit(RawScore(sat, beh, yieldEstimate, fraudScore))
}

// RawScore is the fused score before clamping.
func RawScore(sat domain.SatelliteFeatures, beh domain.BehaviorFeatures, yieldEstimate, fraudScore float64) float64 {
	score := BaseScore
	for _, c := range Contributions(sat, beh, yieldEstimate, fraudScore) {
		score += c.Impact
	}
	return score
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
