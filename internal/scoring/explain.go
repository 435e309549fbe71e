package scoring

import (
	"math"
	"sort"

	"github.com/opensource-finance/shamba/internal/domain"
)

// MaxFactors is the number of factors returned by Explain.
const MaxFactors = 3

var explainedFactors = map[string]bool{
	FactorNDVITrend:    true,
	FactorSoilMoisture: true,
	FactorUSSD:         true,
	FactorMpesa:        true,
	FactorCooperative:  true,
}

// Explain returns up to three factors with the largest absolute impact.
// Terms use the fusion coefficients; fraud, yield and the remaining
// climate terms are not explained. Ties keep summation order.
func Explain(sat domain.SatelliteFeatures, beh domain.BehaviorFeatures) []domain.Factor {
	factors := make([]domain.Factor, 0, len(explainedFactors))
	for _, c := range Contributions(sat, beh, 0, 0) {
		if !explainedFactors[c.Name] {
			continue
		}
		factors = append(factors, domain.Factor{Name: c.Name, Impact: c.Impact, Value: c.Value})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})

	if len(factors) > MaxFactors {
		factors = factors[:MaxFactors]
	}
	return factors
}
