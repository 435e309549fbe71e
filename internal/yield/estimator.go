// Package yield estimates total expected harvest from agronomic features.
package yield

import (
	"math"

	"github.com/opensource-finance/shamba/internal/domain"
)

// DefaultBaseYield is used for crops without a table entry (tonnes/acre).
const DefaultBaseYield = 2.0

// Reference conditions at which a factor saturates at 1.
const (
	referenceNDVI       = 0.6
	referenceMoisture   = 0.25
	referenceRainfall90 = 400.0
)

// BaseYields is tonnes per acre under reference conditions, keyed by
// lower-case crop type.
var BaseYields = map[string]float64{
	"onion":  8.0,
	"maize":  2.5,
	"beans":  1.2,
	"bees":   0.5,
	"tomato": 12.0,
}

// BaseYield returns the per-acre base for crop, or DefaultBaseYield.
func BaseYield(crop string) float64 {
	if base, ok := BaseYields[domain.NormalizeCrop(crop)]; ok {
		return base
	}
	return DefaultBaseYield
}

// Estimate returns expected tonnes for the whole farm, rounded to two
// decimals, never negative and always finite.
func Estimate(sat domain.SatelliteFeatures, crop string, farmSizeAcres float64) float64 {
	ndviFactor := factor(sat.NDVIMean90d / referenceNDVI)
	moistureFactor := factor(sat.SoilMoisture / referenceMoisture)
	rainfallFactor := factor(sat.Rainfall90d / referenceRainfall90)

	tonnes := BaseYield(crop) * ndviFactor * moistureFactor * rainfallFactor * farmSizeAcres
	switch {
	case math.IsNaN(tonnes) || tonnes < 0:
		return 0
	case math.IsInf(tonnes, 1):
		return math.MaxFloat64
	}

	cents := tonnes * 100
	if math.IsInf(cents, 0) {
		return tonnes
	}
	return math.Round(cents) / 100
}

// factor caps a ratio at 1 and floors it at 0.
func factor(ratio float64) float64 {
	return math.Max(0, math.Min(1, ratio))
}
