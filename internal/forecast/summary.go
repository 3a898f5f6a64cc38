package forecast

import (
	"sort"
	"strconv"
	"time"

	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/grid"
	"github.com/tobitamap/weather/internal/ingest"
)

// futureOffsets are the positions, relative to the current hour, sampled
// into Display.Future.
var futureOffsets = []int{3, 6, 9, 12}

// Display is the published view of a cycle.
type Display struct {
	Summary Summary  `json:"summary"`
	Current Current  `json:"current"`
	Future  []Future `json:"future"`
}

// Summary is the compact headline for the current hour.
type Summary struct {
	Code string `json:"code,omitempty"`
	Date string `json:"date,omitempty"`
	Pops string `json:"pops,omitempty"`
	Temp string `json:"temp,omitempty"`
}

// Current details the current hour.
type Current struct {
	Code          string             `json:"code,omitempty"`
	Date          string             `json:"date,omitempty"`
	Weathers      string             `json:"weathers,omitempty"`
	Pops          string             `json:"pops,omitempty"`
	Temp          string             `json:"temp,omitempty"`
	Pressure      string             `json:"pressure,omitempty"`
	Humidity      string             `json:"humidity,omitempty"`
	Wind          string             `json:"wind,omitempty"`
	Precipitation *PrecipitationText `json:"precipitation,omitempty"`
}

type PrecipitationText struct {
	Day  string `json:"day,omitempty"`
	Hour string `json:"hour,omitempty"`
}

// Future is one sampled upcoming hour.
type Future struct {
	Date string `json:"date"`
	Temp string `json:"temp,omitempty"`
	Pops string `json:"pops,omitempty"`
}

// Summarize reduces g to a Display as seen at now. Hours before the hour
// containing now are ignored. Absent record fields are left out of the
// corresponding display strings.
func Summarize(g *grid.Grid, now time.Time) Display {
	d := Display{Future: []Future{}}

	cutoff := dateutil.From(now).TruncateHour().String()
	keys := g.Keys()
	sort.Strings(keys)
	start := sort.SearchStrings(keys, cutoff)
	keys = keys[start:]
	if len(keys) == 0 {
		return d
	}

	cur, _ := g.Record(keys[0])
	d.Summary, d.Current = summarizeCurrent(cur)

	for _, off := range futureOffsets {
		if off >= len(keys) {
			continue
		}
		rec, _ := g.Record(keys[off])
		f := Future{Date: shortKey(keys[off])}
		if rec.Temps != nil {
			f.Temp = "予想気温 " + formatFloat(rec.Temps.Value) + "℃"
		}
		if rec.Pops != nil {
			f.Pops = "降水確率 " + rec.Pops.Value + "％"
		}
		d.Future = append(d.Future, f)
	}
	return d
}

func summarizeCurrent(r *grid.Record) (Summary, Current) {
	var s Summary
	var c Current

	if r.WeatherCodes != nil {
		s.Code = ingest.WeatherIcon(r.WeatherCodes.Value)
		c.Code = s.Code
	}
	if r.Weathers != nil {
		c.Weathers = r.Weathers.Value
	}
	if r.Pops != nil {
		s.Pops = r.Pops.Value + "％"
		c.Pops = "降水確率 " + r.Pops.Value + "％"
	}

	a := r.Amedas
	if a == nil {
		return s, c
	}
	s.Date = a.Time
	c.Date = a.Time + "の天気"
	if a.Temp != nil {
		s.Temp = formatFloat(*a.Temp) + "℃"
		c.Temp = "気温 " + s.Temp
	}
	if a.Pressure != nil {
		c.Pressure = "気圧 " + formatFloat(*a.Pressure) + "hpa"
	}
	if a.Humidity != nil {
		c.Humidity = "湿度 " + formatFloat(*a.Humidity) + "％"
	}
	if a.Wind != nil {
		c.Wind = "風速 " + formatFloat(*a.Wind) + "m/s"
	}
	if a.Precipitation.Day != nil || a.Precipitation.Hour != nil {
		p := &PrecipitationText{}
		if a.Precipitation.Day != nil {
			p.Day = "日間降水量 " + formatFloat(*a.Precipitation.Day) + "mm"
		}
		if a.Precipitation.Hour != nil {
			p.Hour = "時間降水量 " + formatFloat(*a.Precipitation.Hour) + "mm"
		}
		c.Precipitation = p
	}
	return s, c
}

func shortKey(key string) string {
	v, err := dateutil.Parse(key, "")
	if err != nil {
		return key
	}
	return v.Short()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
