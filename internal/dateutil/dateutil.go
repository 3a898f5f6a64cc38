// Package dateutil wraps wall-clock instants in the station's local zone and
// expands sparse forecast time series onto an hourly timeline.
package dateutil

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	// CanonicalLayout is the hour-key format used throughout the grid.
	CanonicalLayout = "2006-01-02T15:04:05"
	shortLayout     = "15:04"
	compactLayout   = "20060102"

	// MaxSlots bounds the output of SeriesIterator.
	MaxSlots = 48
)

var (
	locMu    sync.RWMutex
	location = loadDefaultLocation()
)

func loadDefaultLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// SetLocation changes the zone used for local fields. Call once at startup.
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locMu.Lock()
	location = loc
	locMu.Unlock()
}

// Location returns the zone used for local fields.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return location
}

// ParseError reports a timestamp that matched none of the accepted layouts.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse time %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Value is a mutable instant. TruncateHour and IncrementHour modify the
// receiver and return it so calls can be chained.
type Value struct {
	t time.Time
}

// Now returns the current instant.
func Now() *Value {
	return From(time.Now())
}

// From wraps t, viewed in the configured zone.
func From(t time.Time) *Value {
	return &Value{t: t.In(Location())}
}

var (
	zonedLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		CanonicalLayout,
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
	}
)

// Parse reads text with offset (for example "+09:00") appended. An empty
// offset means text already carries its zone, or is a local wall time.
func Parse(text, offset string) (*Value, error) {
	s := strings.TrimSpace(text) + offset
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return From(t), nil
		}
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, Location())
		if err == nil {
			return &Value{t: t}, nil
		}
		lastErr = err
	}
	return nil, &ParseError{Text: s, Err: lastErr}
}

// Time returns the wrapped instant.
func (v *Value) Time() time.Time { return v.t }

// TruncateHour zeroes minutes, seconds and nanoseconds in place.
func (v *Value) TruncateHour() *Value {
	t := v.t
	v.t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return v
}

// IncrementHour advances the instant by exactly one hour in place.
func (v *Value) IncrementHour() *Value {
	v.t = v.t.Add(time.Hour)
	return v
}

// String formats as YYYY-MM-DDTHH:MM:SS.
func (v *Value) String() string { return v.t.Format(CanonicalLayout) }

// Short formats as HH:MM.
func (v *Value) Short() string { return v.t.Format(shortLayout) }

// Compact formats as YYYYMMDD, the AMeDAS file date.
func (v *Value) Compact() string { return v.t.Format(compactLayout) }

// Hour returns the local hour, 0-23.
func (v *Value) Hour() int { return v.t.Hour() }

// Before reports whether v is strictly before u.
func (v *Value) Before(u *Value) bool { return v.t.Before(u.t) }

// SeriesSpan returns the largest gap in whole hours between consecutive
// entries of an ascending series, or 0 for fewer than two entries.
func SeriesSpan(series []string) (int, error) {
	if len(series) < 2 {
		return 0, nil
	}
	prev, err := Parse(series[0], "")
	if err != nil {
		return 0, err
	}
	span := 0
	for _, s := range series[1:] {
		cur, err := Parse(s, "")
		if err != nil {
			return 0, err
		}
		gap := int(math.Abs(cur.t.Sub(prev.t).Hours()))
		if gap > span {
			span = gap
		}
		prev = cur
	}
	return span, nil
}

// Slot is one hour of a dense expansion.
type Slot struct {
	Date  string // canonical hour string
	Index int    // active entry of the sparse series
	Span  int    // coarseness of the sparse series in hours
}

// SeriesIterator expands a sparse ascending series to consecutive hours,
// starting at series[0]. Index advances when the dense hour reaches the next
// sparse entry; the last entry stays active until MaxSlots slots are emitted.
func SeriesIterator(series []string, offset string) ([]Slot, error) {
	if len(series) == 0 {
		return nil, nil
	}
	normalized := make([]string, len(series))
	for i, s := range series {
		v, err := Parse(s, offset)
		if err != nil {
			return nil, err
		}
		normalized[i] = v.String()
	}
	span, err := SeriesSpan(normalized)
	if err != nil {
		return nil, err
	}

	itr, err := Parse(series[0], offset)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, MaxSlots)
	slots = append(slots, Slot{Date: itr.String(), Index: 0, Span: span})
	index := 0
	for len(slots) < MaxSlots {
		date := itr.IncrementHour().String()
		if index+1 < len(normalized) && date == normalized[index+1] {
			index++
		}
		slots = append(slots, Slot{Date: date, Index: index, Span: span})
	}
	return slots, nil
}
