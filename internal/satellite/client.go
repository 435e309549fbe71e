// Package satellite derives agronomic features for a location from the NASA
// POWER daily point API.
package satellite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

// NASA POWER parameter names.
const (
	paramPrecipitation      = "PRECTOTCORR"
	paramEvapotranspiration = "EVPTRNS"
	paramTemperature        = "T2M"
	paramHumidity           = "RH2M"

	// fillValue marks a missing daily sample in POWER responses.
	fillValue = -999.0
)

// ErrMalformedResponse is returned when the upstream payload cannot be used.
var ErrMalformedResponse = errors.New("malformed upstream response")

// Series holds chronologically ordered daily samples.
type Series struct {
	Precipitation      []float64 `json:"precipitation"`      // mm/day
	Evapotranspiration []float64 `json:"evapotranspiration"` // mm/day
	Temperature        []float64 `json:"temperature"`        // °C
	Humidity           []float64 `json:"humidity"`           // %
}

// Source returns daily climate series for a point and inclusive date range.
type Source interface {
	DailySeries(ctx context.Context, loc domain.Location, start, end time.Time) (*Series, error)
}

// PowerClient queries the NASA POWER daily point endpoint.
type PowerClient struct {
	Client    *http.Client
	BaseURL   string
	Community string
}

// NewPowerClient creates a client from configuration.
func NewPowerClient(cfg domain.SatelliteConfig) *PowerClient {
	community := cfg.Community
	if community == "" {
		community = "AG"
	}
	return &PowerClient{
		Client:    &http.Client{Timeout: cfg.Timeout},
		BaseURL:   cfg.BaseURL,
		Community: community,
	}
}

// powerResponse is the subset of the POWER GeoJSON payload we read.
type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// DailySeries fetches the four daily series for loc between start and end.
func (c *PowerClient) DailySeries(ctx context.Context, loc domain.Location, start, end time.Time) (*Series, error) {
	params := url.Values{}
	params.Set("parameters", paramPrecipitation+","+paramEvapotranspiration+","+paramTemperature+","+paramHumidity)
	params.Set("community", c.Community)
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("start", start.Format("20060102"))
	params.Set("end", end.Format("20060102"))
	params.Set("format", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request POWER: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("POWER returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload powerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	p := payload.Properties.Parameter
	series := &Series{
		Precipitation:      orderedValues(p[paramPrecipitation]),
		Evapotranspiration: orderedValues(p[paramEvapotranspiration]),
		Temperature:        orderedValues(p[paramTemperature]),
		Humidity:           orderedValues(p[paramHumidity]),
	}

	if len(series.Precipitation) == 0 || len(series.Evapotranspiration) == 0 || len(series.Temperature) == 0 {
		return nil, fmt.Errorf("%w: missing precipitation, evapotranspiration or temperature series", ErrMalformedResponse)
	}

	return series, nil
}

// orderedValues sorts a YYYYMMDD-keyed map by date and drops fill values.
func orderedValues(byDate map[string]float64) []float64 {
	if len(byDate) == 0 {
		return nil
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	values := make([]float64, 0, len(dates))
	for _, d := range dates {
		v := byDate[d]
		if v == fillValue {
			continue
		}
		values = append(values, v)
	}
	return values
}
