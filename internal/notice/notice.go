// Package notice composes the short rain-radar notice posted alongside the
// nowcast animation.
package notice

import (
	"strings"

	"github.com/tobitamap/weather/internal/forecast"
)

// DefaultPlace is the location name used in notices.
const DefaultPlace = "大阪（飛田）"

// Fallback is used when no current conditions are available.
const Fallback = "今後1時間の雨雲の予想です。"

// Compose builds the notice text from the current conditions in d.
func Compose(place string, d *forecast.Display) string {
	if d == nil || d.Current.Temp == "" {
		return Fallback
	}
	if place == "" {
		place = DefaultPlace
	}

	c := d.Current
	parts := []string{c.Temp, c.Pops, c.Pressure, c.Humidity, c.Wind}
	if c.Precipitation != nil {
		parts = append(parts, c.Precipitation.Hour)
	}

	var present []string
	for _, p := range parts {
		if p != "" {
			present = append(present, p)
		}
	}
	return place + "の現在の天気は、" + strings.Join(present, "、") +
		"。ナウキャストで見た今後1時間の雨雲の動きは次の通りです。"
}
