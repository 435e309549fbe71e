package domain

// SatelliteFeatures is the agronomic feature vector for one location and
// trailing window. Soil moisture and NDVI are proxies derived from the
// climate series, not independent sensor reads.
type SatelliteFeatures struct {
	SoilMoisture       float64 `json:"soilMoisture"`
	SoilMoistureZScore float64 `json:"soilMoistureZscore"`
	Rainfall30d        float64 `json:"rainfall30d"`
	Rainfall90d        float64 `json:"rainfall90d"`
	ET30d              float64 `json:"et30d"`
	TempAvg            float64 `json:"tempAvg"`
	HumidityAvg        float64 `json:"humidityAvg"`
	NDVIMean90d        float64 `json:"ndviMean90d"`
	NDVITrend90d       float64 `json:"ndviTrend90d"`
	DroughtFlag        bool    `json:"droughtFlag"`
}

// FallbackSatelliteFeatures returns the fixed set used whenever the upstream
// climate source cannot be read.
func FallbackSatelliteFeatures() SatelliteFeatures {
	return SatelliteFeatures{
		SoilMoisture:       0.28,
		SoilMoistureZScore: 0.15,
		Rainfall30d:        145.0,
		Rainfall90d:        380.0,
		ET30d:              4.2,
		TempAvg:            24.5,
		HumidityAvg:        68.0,
		NDVIMean90d:        0.62,
		NDVITrend90d:       0.02,
		DroughtFlag:        false,
	}
}

// BehaviorFeatures is the farmer's behavioral feature vector.
type BehaviorFeatures struct {
	MpesaTxnCount90d       int     `json:"mpesaTxnCount90d"`
	MpesaAvgBalance        float64 `json:"mpesaAvgBalance"`
	DepositToWithdrawRatio float64 `json:"depositToWithdrawRatio"`
	USSDEngagementCount90d int     `json:"ussdEngagementCount90d"`
	AccountAgeDays         int     `json:"accountAgeDays"`
	CooperativeMember      bool    `json:"cooperativeMember"`
	TrainingSessions       int     `json:"trainingSessionsAttended"`
}

// SatelliteReading is a feature set plus whether it came from the fallback.
type SatelliteReading struct {
	Features SatelliteFeatures
	Fallback bool
}
