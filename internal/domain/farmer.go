package domain

import (
	"fmt"
	"time"
)

// Farmer is a stored farmer profile that can be scored without restating
// location, crop and farm size on every request.
type Farmer struct {
	Phone         string    `json:"phone"`
	Name          string    `json:"name"`
	Location      Location  `json:"location"`
	CropType      string    `json:"cropType"`
	FarmSizeAcres float64   `json:"farmSizeAcres"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Validate checks the profile fields.
func (f *Farmer) Validate() error {
	if NormalizeIdentity(f.Phone) == "" {
		return fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	if err := f.Location.Validate(); err != nil {
		return err
	}
	if NormalizeCrop(f.CropType) == "" {
		return fmt.Errorf("%w: crop type is required", ErrInvalidInput)
	}
	if err := validateFarmSize(f.FarmSizeAcres, true); err != nil {
		return err
	}
	return nil
}

// ScoreRequest builds the scoring input for this profile. A zero farm size
// means unknown and falls back to the default.
func (f *Farmer) ScoreRequest() ScoreRequest {
	req := ScoreRequest{
		Identity: f.Phone,
		Location: f.Location,
		CropType: f.CropType,
	}
	if f.FarmSizeAcres > 0 {
		size := f.FarmSizeAcres
		req.FarmSizeAcres = &size
	}
	return req
}
