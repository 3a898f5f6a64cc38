package forecast

import "github.com/tobitamap/weather/internal/ingest"

// Config holds the vendor endpoints and location parameters for a Collector.
type Config struct {
	ForecastURL string // JMA forecast template with {area}
	AreaCode    string

	LatestTimeURL string
	AmedasURL     string // template with {stnid}, {yyyymmdd} and {h3}
	Station       string

	OpenMeteoURL string
	Latitude     float64
	Longitude    float64
	Timezone     string
	// Offset is appended to zone-less model timestamps before parsing.
	Offset string
}

// DefaultConfig targets Osaka.
func DefaultConfig() Config {
	return Config{
		ForecastURL:   ingest.DefaultForecastURL,
		AreaCode:      ingest.OsakaAreaCode,
		LatestTimeURL: ingest.DefaultLatestTimeURL,
		AmedasURL:     ingest.DefaultAmedasURL,
		Station:       ingest.OsakaStation,
		OpenMeteoURL:  ingest.DefaultOpenMeteoURL,
		Latitude:      ingest.OsakaLatitude,
		Longitude:     ingest.OsakaLongitude,
		Timezone:      "Asia/Tokyo",
		Offset:        "+09:00",
	}
}
