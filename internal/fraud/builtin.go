package fraud

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Built-in penalties.
const (
	PenaltyLowNDVI            = 0.30
	PenaltyCropClimate        = 0.20
	PenaltyMoistureRainfall   = 0.20
	PenaltyOutsideServiceArea = 0.50
)

// WaterIntensiveCrops need sustained rainfall; a claim of one of these in a
// dry month is inconsistent.
var WaterIntensiveCrops = []string{"onion"}

// BuiltinRules returns the four location/crop/climate checks in evaluation
// order. The geofence check is generated from region.
func BuiltinRules(region domain.BoundingBox) []*domain.FraudRuleConfig {
	return []*domain.FraudRuleConfig{
		{
			ID:          domain.RuleLowNDVI,
			Name:        "Low NDVI for active farmland",
			Description: "Vegetation index is implausibly low for a cultivated plot",
			Version:     "1.0.0",
			Expression:  "ndvi_mean_90d < 0.2",
			Penalty:     PenaltyLowNDVI,
			Enabled:     true,
			Builtin:     true,
		},
		{
			ID:          domain.RuleCropClimate,
			Name:        "Crop/climate mismatch",
			Description: "Water-intensive crop claimed with under 30mm of rain in 30 days",
			Version:     "1.0.0",
			Expression:  fmt.Sprintf("crop_type in %s && rainfall_30d < 30.0", celStringList(WaterIntensiveCrops)),
			Penalty:     PenaltyCropClimate,
			Enabled:     true,
			Builtin:     true,
		},
		{
			ID:          domain.RuleMoistureRainfall,
			Name:        "Moisture/rainfall inconsistency",
			Description: "Heavy recent rainfall but dry soil",
			Version:     "1.0.0",
			Expression:  "rainfall_30d > 150.0 && soil_moisture < 0.15",
			Penalty:     PenaltyMoistureRainfall,
			Enabled:     true,
			Builtin:     true,
		},
		{
			ID:          domain.RuleOutsideServiceArea,
			Name:        "Outside service region",
			Description: "Claimed location is outside the service region geofence",
			Version:     "1.0.0",
			Expression: fmt.Sprintf("!(latitude >= %s && latitude <= %s && longitude >= %s && longitude <= %s)",
				celDouble(region.MinLatitude), celDouble(region.MaxLatitude),
				celDouble(region.MinLongitude), celDouble(region.MaxLongitude)),
			Penalty: PenaltyOutsideServiceArea,
			Enabled: true,
			Builtin: true,
		},
	}
}

// celDouble formats v as a CEL double literal (always with a decimal point).
func celDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func celStringList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
