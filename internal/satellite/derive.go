package satellite

import (
	"fmt"
	"math"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Derivation constants.
const (
	recentDays = 30

	defaultHumidity = 65.0

	soilMoistureMin  = 0.05
	soilMoistureMax  = 0.45
	soilMoistureMean = 0.25
	soilMoistureStd  = 0.08

	ndviMin = 0.10
	ndviMax = 0.90

	droughtRainfallMM = 50.0
)

// Derive computes the feature set from daily series. It is pure: the same
// series always yield the same features.
func Derive(s *Series) (domain.SatelliteFeatures, error) {
	if s == nil || len(s.Precipitation) == 0 || len(s.Evapotranspiration) == 0 || len(s.Temperature) == 0 {
		return domain.SatelliteFeatures{}, fmt.Errorf("%w: empty series", ErrMalformedResponse)
	}

	rainfall30 := sum(tail(s.Precipitation, recentDays))
	rainfall90 := sum(s.Precipitation)
	et30 := mean(tail(s.Evapotranspiration, recentDays))
	temp := mean(tail(s.Temperature, recentDays))

	humidity := defaultHumidity
	if len(s.Humidity) > 0 {
		humidity = mean(tail(s.Humidity, recentDays))
	}

	moisture := SoilMoistureProxy(rainfall30, et30, temp)

	f := domain.SatelliteFeatures{
		SoilMoisture:       moisture,
		SoilMoistureZScore: (moisture - soilMoistureMean) / soilMoistureStd,
		Rainfall30d:        rainfall30,
		Rainfall90d:        rainfall90,
		ET30d:              et30,
		TempAvg:            temp,
		HumidityAvg:        humidity,
		NDVIMean90d:        NDVIProxy(rainfall30, moisture, temp),
		NDVITrend90d:       RainfallMomentum(s.Precipitation),
		DroughtFlag:        rainfall30 < droughtRainfallMM,
	}

	for name, v := range map[string]float64{
		"rainfall_30d": f.Rainfall30d,
		"rainfall_90d": f.Rainfall90d,
		"et_30d":       f.ET30d,
		"temp_avg":     f.TempAvg,
		"humidity_avg": f.HumidityAvg,
		"ndvi_trend":   f.NDVITrend90d,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.SatelliteFeatures{}, fmt.Errorf("%w: %s is not finite", ErrMalformedResponse, name)
		}
	}
	if f.Rainfall30d < 0 || f.Rainfall90d < 0 || f.ET30d < 0 {
		return domain.SatelliteFeatures{}, fmt.Errorf("%w: negative rainfall or evapotranspiration", ErrMalformedResponse)
	}

	return f, nil
}

// SoilMoistureProxy is a water-balance estimate of volumetric soil moisture.
func SoilMoistureProxy(rainfall30d, et30d, tempAvg float64) float64 {
	moisture := 0.15 + rainfall30d/500.0 - et30d/200.0 - (tempAvg-20)/100.0
	return clamp(moisture, soilMoistureMin, soilMoistureMax)
}

// NDVIProxy estimates vegetation greenness from water availability and
// temperature stress.
func NDVIProxy(rainfall30d, soilMoisture, tempAvg float64) float64 {
	ndvi := 0.3 + soilMoisture*0.8 + rainfall30d/400.0 - math.Abs(tempAvg-25)/50.0
	return clamp(ndvi, ndviMin, ndviMax)
}

// RainfallMomentum is the least-squares slope of the last 30 daily
// precipitation values, scaled by 1/10. Fewer than 30 samples yield 0.
func RainfallMomentum(precipitation []float64) float64 {
	if len(precipitation) < recentDays {
		return 0
	}
	return slope(tail(precipitation, recentDays)) / 10.0
}

func slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}

	xMean := (n - 1) / 2
	yMean := mean(ys)

	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
