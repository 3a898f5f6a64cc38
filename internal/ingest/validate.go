package ingest

import (
	"encoding/json"

	"github.com/tobitamap/weather/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagPrecipNegative     = "precip_negative"
)

func ValidateObservation(obs *models.Observation) []string {
	var flags []string

	if obs.Temp.Valid {
		if obs.Temp.Float64 < -30 || obs.Temp.Float64 > 50 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if obs.Humidity.Valid {
		if obs.Humidity.Float64 < 0 || obs.Humidity.Float64 > 100 {
			flags = append(flags, FlagHumidityInvalid)
		}
	}

	if obs.WindSpeed.Valid {
		if obs.WindSpeed.Float64 < 0 || obs.WindSpeed.Float64 > 75 {
			flags = append(flags, FlagWindSpeedUnlikely)
		}
	}

	if obs.Pressure.Valid {
		if obs.Pressure.Float64 < 900 || obs.Pressure.Float64 > 1100 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	if (obs.Precip1h.Valid && obs.Precip1h.Float64 < 0) ||
		(obs.Precip24h.Valid && obs.Precip24h.Float64 < 0) {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
