// Package grid holds the 48-hour reconciliation timeline that vendor
// parsers populate.
package grid

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tobitamap/weather/internal/dateutil"
)

// Hours is the number of hourly slots in a grid.
const Hours = 48

// Field names a per-hour record field.
type Field string

const (
	FieldWeathers     Field = "weathers"
	FieldPops         Field = "pops"
	FieldWeatherCodes Field = "weatherCodes"
	FieldWind         Field = "wind"
	FieldTemps        Field = "temps"
	FieldAmedas       Field = "amedas"
)

// SpannedFields are the fields subject to the span merge policy.
var SpannedFields = []Field{FieldWeathers, FieldPops, FieldWeatherCodes, FieldWind}

// Spanned is a forecast value tagged with the coarseness of its source series.
type Spanned struct {
	Span  int    `json:"span"`
	Value string `json:"value"`
}

// Reading is an unspanned hourly model value.
type Reading struct {
	Value float64 `json:"value"`
}

// Precipitation holds accumulated rainfall in millimetres.
type Precipitation struct {
	Day  *float64 `json:"day,omitempty"`
	Hour *float64 `json:"hour,omitempty"`
}

// Snapshot is a single AMeDAS observation. Nil measurements were not reported.
type Snapshot struct {
	Date          string        `json:"date"` // YYYY-MM-DD HH:MM:SS
	Time          string        `json:"time"` // HH:MM
	Temp          *float64      `json:"temp,omitempty"`
	Pressure      *float64      `json:"pressure,omitempty"`
	Humidity      *float64      `json:"humidity,omitempty"`
	Precipitation Precipitation `json:"precipitation"`
	Wind          *float64      `json:"wind,omitempty"`
}

// Record is everything known about one hour.
type Record struct {
	Weathers     *Spanned  `json:"weathers,omitempty"`
	Pops         *Spanned  `json:"pops,omitempty"`
	WeatherCodes *Spanned  `json:"weatherCodes,omitempty"`
	Wind         *Spanned  `json:"wind,omitempty"`
	Temps        *Reading  `json:"temps,omitempty"`
	Amedas       *Snapshot `json:"amedas,omitempty"`
}

// Spanned returns the current value of a spanned field, or nil.
func (r *Record) Spanned(f Field) *Spanned {
	if p := r.spannedSlot(f); p != nil {
		return *p
	}
	return nil
}

func (r *Record) spannedSlot(f Field) **Spanned {
	switch f {
	case FieldWeathers:
		return &r.Weathers
	case FieldPops:
		return &r.Pops
	case FieldWeatherCodes:
		return &r.WeatherCodes
	case FieldWind:
		return &r.Wind
	}
	return nil
}

// MergeIfFiner writes value into field unless the field already holds a
// value from a strictly finer series. Equal spans overwrite. It reports
// whether the write was accepted.
func MergeIfFiner(r *Record, f Field, span int, value string) bool {
	slot := r.spannedSlot(f)
	if slot == nil {
		return false
	}
	if cur := *slot; cur != nil && cur.Span < span {
		return false
	}
	*slot = &Spanned{Span: span, Value: value}
	return true
}

// Grid maps canonical hour keys to records. The key set is fixed at
// construction.
type Grid struct {
	keys    []string
	records map[string]*Record
}

// New builds a grid of Hours empty records starting at the hour containing start.
func New(start time.Time) *Grid {
	g := &Grid{
		keys:    make([]string, 0, Hours),
		records: make(map[string]*Record, Hours),
	}
	v := dateutil.From(start).TruncateHour()
	for i := 0; i < Hours; i++ {
		key := v.String()
		g.keys = append(g.keys, key)
		g.records[key] = &Record{}
		v.IncrementHour()
	}
	return g
}

// Keys returns the hour keys in ascending order.
func (g *Grid) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Len returns the number of hours.
func (g *Grid) Len() int { return len(g.keys) }

// Record returns the record for key, if key is inside the window.
func (g *Grid) Record(key string) (*Record, bool) {
	r, ok := g.records[key]
	return r, ok
}

// Merge applies MergeIfFiner at key. Keys outside the window are ignored.
func (g *Grid) Merge(key string, f Field, span int, value string) bool {
	r, ok := g.records[key]
	if !ok {
		return false
	}
	return MergeIfFiner(r, f, span, value)
}

// SetTemp overwrites the hourly model temperature at key.
func (g *Grid) SetTemp(key string, value float64) bool {
	r, ok := g.records[key]
	if !ok {
		return false
	}
	r.Temps = &Reading{Value: value}
	return true
}

// Broadcast copies snap into the amedas field of every hour, bypassing the
// span policy.
func (g *Grid) Broadcast(snap Snapshot) {
	for _, key := range g.keys {
		s := snap
		g.records[key].Amedas = &s
	}
}

// Populated counts hours that carry at least one forecast field.
func (g *Grid) Populated() int {
	n := 0
	for _, key := range g.keys {
		r := g.records[key]
		if r.Weathers != nil || r.Pops != nil || r.WeatherCodes != nil || r.Wind != nil || r.Temps != nil {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the grid as an object with keys in chronological order.
func (g *Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		rec, err := json.Marshal(g.records[key])
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
