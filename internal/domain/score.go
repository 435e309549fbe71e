package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultFarmSizeAcres is used when a request omits the farm size.
const DefaultFarmSizeAcres = 1.0

// MaxFarmSizeAcres is the largest farm size accepted for scoring.
const MaxFarmSizeAcres = 100000.0

// validateFarmSize rejects non-finite sizes, sizes above MaxFarmSizeAcres and
// sizes at or below zero. allowZero admits 0 as "unknown".
func validateFarmSize(size float64, allowZero bool) error {
	switch {
	case math.IsNaN(size) || math.IsInf(size, 0):
		return fmt.Errorf("%w: farm size %v must be a finite number of acres", ErrInvalidInput, size)
	case size > MaxFarmSizeAcres:
		return fmt.Errorf("%w: farm size %v exceeds %v acres", ErrInvalidInput, size, MaxFarmSizeAcres)
	case size < 0, size == 0 && !allowZero:
		return fmt.Errorf("%w: farm size %v must be a positive number of acres", ErrInvalidInput, size)
	}
	return nil
}

// ScoreRequest is the input to a single scoring invocation.
type ScoreRequest struct {
	Identity      string   `json:"identity"`
	Location      Location `json:"location"`
	CropType      string   `json:"cropType"`
	FarmSizeAcres *float64 `json:"farmSizeAcres,omitempty"`
}

// NormalizeIdentity trims whitespace and a leading '+' from an MSISDN so
// "+254712345678" and "254712345678" name the same farmer.
func NormalizeIdentity(identity string) string {
	return strings.TrimPrefix(strings.TrimSpace(identity), "+")
}

// NormalizeCrop lower-cases and trims a crop type.
func NormalizeCrop(crop string) string {
	return strings.ToLower(strings.TrimSpace(crop))
}

// Normalize returns a copy with identity and crop normalized and the farm
// size defaulted. It does not validate.
func (r ScoreRequest) Normalize() ScoreRequest {
	out := r
	out.Identity = NormalizeIdentity(r.Identity)
	out.CropType = NormalizeCrop(r.CropType)
	if out.FarmSizeAcres == nil {
		size := DefaultFarmSizeAcres
		out.FarmSizeAcres = &size
	}
	return out
}

// Acres returns the farm size, or DefaultFarmSizeAcres when unset.
func (r ScoreRequest) Acres() float64 {
	if r.FarmSizeAcres == nil {
		return DefaultFarmSizeAcres
	}
	return *r.FarmSizeAcres
}

// Validate reports the first malformed field wrapped in ErrInvalidInput.
func (r ScoreRequest) Validate() error {
	if NormalizeIdentity(r.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if NormalizeCrop(r.CropType) == "" {
		return fmt.Errorf("%w: crop type is required", ErrInvalidInput)
	}
	if r.FarmSizeAcres != nil {
		if err := validateFarmSize(*r.FarmSizeAcres, false); err != nil {
			return err
		}
	}
	return nil
}

// RiskLevel is the coarse risk label attached to a score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// Factor is one explained contribution to a credit score.
type Factor struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
	Value  float64 `json:"value"`
}

// Contribution is one additive term of the fused score.
type Contribution struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Impact float64 `json:"impact"`
}

// FraudSignal is a triggered location/crop/climate consistency check.
type FraudSignal struct {
	RuleID  string  `json:"ruleId"`
	Name    string  `json:"name"`
	Penalty float64 `json:"penalty"`
}

// FraudAssessment is the clamped sum of triggered penalties.
// 0 means trustworthy, 1 maximally suspicious.
type FraudAssessment struct {
	Score   float64       `json:"score"`
	Signals []FraudSignal `json:"signals,omitempty"`
}

// LoanRecommendation is either a rejection (Approved=false with Reason and
// Alternative) or an offer (Approved=true with amount, rate and term).
type LoanRecommendation struct {
	Approved bool `json:"approved"`

	// Rejection
	Reason               string  `json:"reason,omitempty"`
	Alternative          string  `json:"alternative,omitempty"`
	MicroloanAvailable   float64 `json:"microloanAvailable,omitempty"`
	SavingsPlanAvailable bool    `json:"savingsPlanAvailable,omitempty"`

	// Offer
	AmountKsh      float64 `json:"amountKsh,omitempty"`
	InterestRate   float64 `json:"interestRate,omitempty"`
	TermMonths     int     `json:"termMonths,omitempty"`
	MonthlyPayment float64 `json:"monthlyPayment,omitempty"`
	Confidence     string  `json:"confidence,omitempty"`
	Requires       string  `json:"requires,omitempty"`
}

// CreditScore is the immutable result of one scoring invocation.
type CreditScore struct {
	Identity           string             `json:"identity"`
	Score              float64            `json:"score"`
	RiskLevel          RiskLevel          `json:"riskLevel"`
	LoanRecommendation LoanRecommendation `json:"loanRecommendation"`
	TopFactors         []Factor           `json:"topFactors"`
	FraudScore         float64            `json:"fraudScore"`
	FraudSignals       []FraudSignal      `json:"fraudSignals,omitempty"`
	YieldEstimate      float64            `json:"yieldEstimate"`

	Satellite         SatelliteFeatures `json:"satellite"`
	Behavior          BehaviorFeatures  `json:"behavior"`
	SatelliteFallback bool              `json:"satelliteFallback"`
	ScoredAt          time.Time         `json:"scoredAt"`
}
