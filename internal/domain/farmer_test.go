package domain

import (
	"errors"
	"math"
	"testing"
)

func TestFarmerValidate(t *testing.T) {
	base := Farmer{Phone: "+254712345678", Location: Location{-0.42, 36.95}, CropType: "maize"}

	tests := []struct {
		name    string
		acres   float64
		wantErr bool
	}{
		{"UnknownSize", 0, false},
		{"TwoAcres", 2, false},
		{"AtMaximum", MaxFarmSizeAcres, false},
		{"Negative", -1, true},
		{"Oversized", 1e307, true},
		{"NaN", math.NaN(), true},
		{"Inf", math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			f.FarmSizeAcres = tt.acres
			err := f.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFarmerScoreRequestIsValid(t *testing.T) {
	f := Farmer{Phone: "254712345678", Location: Location{-0.42, 36.95}, CropType: "onion", FarmSizeAcres: MaxFarmSizeAcres}
	if err := f.Validate(); err != nil {
		t.Fatalf("profile rejected: %v", err)
	}
	if err := f.ScoreRequest().Validate(); err != nil {
		t.Errorf("stored profile produced an invalid score request: %v", err)
	}
}
