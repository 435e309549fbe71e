package domain

// FraudRuleConfig defines one location/crop/climate consistency check.
// The expression is CEL over the satellite feature set, the location and the
// crop type; when it yields true (or a positive number) the penalty is added
// to the fraud score.
type FraudRuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// CEL expression returning bool, int or double
	Expression string `json:"expression"`

	// Penalty added when the expression triggers
	Penalty float64 `json:"penalty"`

	Enabled bool `json:"enabled"`

	// Builtin rules ship with the engine and cannot be replaced.
	Builtin bool `json:"builtin,omitempty"`
}

// Built-in fraud rule IDs.
const (
	RuleLowNDVI            = "fraud-low-ndvi"
	RuleCropClimate        = "fraud-crop-climate-mismatch"
	RuleMoistureRainfall   = "fraud-moisture-rainfall-inconsistent"
	RuleOutsideServiceArea = "fraud-outside-service-region"
)
