package domain

import (
	"fmt"
	"math"
)

// Location is a claimed farm position in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinates are finite and on the globe.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be within [-90, 90]", ErrInvalidInput, l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be within [-180, 180]", ErrInvalidInput, l.Longitude)
	}
	return nil
}

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	MinLatitude  float64 `json:"minLatitude"`
	MaxLatitude  float64 `json:"maxLatitude"`
	MinLongitude float64 `json:"minLongitude"`
	MaxLongitude float64 `json:"maxLongitude"`
}

// Contains reports whether loc lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Latitude >= b.MinLatitude && loc.Latitude <= b.MaxLatitude &&
		loc.Longitude >= b.MinLongitude && loc.Longitude <= b.MaxLongitude
}

// ServiceRegion is the geofence farms are expected to fall within (Kenya).
var ServiceRegion = BoundingBox{
	MinLatitude:  -5,
	MaxLatitude:  5,
	MinLongitude: 33,
	MaxLongitude: 42,
}
