// Package policy maps a credit score and fraud score to a loan
// recommendation and a risk label.
//
// Loan tiers (0.80/0.60/0.40) and risk labels (0.75/0.50) use separate
// threshold sets. They are independent and must stay that way.
package policy

import "github.com/opensource-finance/shamba/internal/domain"

// Fraud gate.
const (
	FraudGateThreshold = 0.6
	MicroloanKsh       = 5000.0
)

// Loan tier thresholds, inclusive lower bounds.
const (
	TierHighMin   = 0.80
	TierMediumMin = 0.60
	TierLowMin    = 0.40
)

// Risk label thresholds, inclusive lower bounds.
const (
	RiskLowMin    = 0.75
	RiskMediumMin = 0.50
)

// Rejection reasons.
const (
	ReasonLocationVerification = "Location verification required"
	ReasonScoreTooLow          = "Credit score too low"
)

// Decide applies the fraud gate first and then the score tiers. Yield and
// crop are accepted for future tier pricing and do not change the outcome.
func Decide(score, fraudScore, yieldEstimate float64, cropType string) domain.LoanRecommendation {
	switch {
	case fraudScore > FraudGateThreshold:
		return domain.LoanRecommendation{
			Approved:           false,
			Reason:             ReasonLocationVerification,
			Alternative:        "Visit agent for verification",
			MicroloanAvailable: MicroloanKsh,
		}
	case score >= TierHighMin:
		return domain.LoanRecommendation{
			Approved:       true,
			AmountKsh:      50000,
			InterestRate:   8.0,
			TermMonths:     6,
			MonthlyPayment: 8800,
			Confidence:     "High",
		}
	case score >= TierMediumMin:
		return domain.LoanRecommendation{
			Approved:       true,
			AmountKsh:      30000,
			InterestRate:   10.0,
			TermMonths:     4,
			MonthlyPayment: 7875,
			Confidence:     "Medium",
		}
	case score >= TierLowMin:
		return domain.LoanRecommendation{
			Approved:       true,
			AmountKsh:      10000,
			InterestRate:   12.0,
			TermMonths:     3,
			MonthlyPayment: 3533,
			Confidence:     "Low",
			Requires:       "M-Pesa deposit or cooperative guarantee",
		}
	default:
		return domain.LoanRecommendation{
			Approved:             false,
			Reason:               ReasonScoreTooLow,
			Alternative:          "Complete 2 training sessions to improve score",
			SavingsPlanAvailable: true,
		}
	}
}

// Classify returns the risk label for score.
func Classify(score float64) domain.RiskLevel {
	switch {
	case score >= RiskLowMin:
		return domain.RiskLow
	case score >= RiskMediumMin:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// FraudGated reports whether the fraud gate rejects regardless of score.
func FraudGated(fraudScore float64) bool {
	return fraudScore > FraudGateThreshold
}
