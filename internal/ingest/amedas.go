package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/grid"
	"github.com/tobitamap/weather/internal/models"
)

const (
	DefaultLatestTimeURL = "https://www.jma.go.jp/bosai/amedas/data/latest_time.txt"
	// DefaultAmedasURL is the per-station three-hour AMeDAS file.
	DefaultAmedasURL = "https://www.jma.go.jp/bosai/amedas/data/point/{stnid}/{yyyymmdd}_{h3}.json"
	// OsakaStation is the AMeDAS station id for Osaka.
	OsakaStation = "62078"

	amedasFileHours = 3
)

// Bucket identifies the AMeDAS file holding the most recent observations.
type Bucket struct {
	LastReceived string // canonical time of the latest observation
	Date         string // YYYYMMDD
	Hour         string // two-digit hour floored to a multiple of three
}

// IsZero reports whether the bucket is unknown.
func (b Bucket) IsZero() bool {
	return b.Date == "" || b.Hour == ""
}

// LatestTimeVendor reads the plain-text timestamp of the newest AMeDAS data.
type LatestTimeVendor struct {
	url string
}

func NewLatestTimeVendor(url string) *LatestTimeVendor {
	if url == "" {
		url = DefaultLatestTimeURL
	}
	return &LatestTimeVendor{url: url}
}

func (v *LatestTimeVendor) Name() string { return "amedas_latest" }

func (v *LatestTimeVendor) URL() string { return v.url }

// Parse converts a latest_time.txt body into a Bucket.
func (v *LatestTimeVendor) Parse(body []byte) (Bucket, error) {
	t, err := dateutil.Parse(string(body), "")
	if err != nil {
		return Bucket{}, &ParseError{Vendor: v.Name(), Err: err}
	}
	hour := t.Hour()
	return Bucket{
		LastReceived: t.String(),
		Date:         t.Compact(),
		Hour:         fmt.Sprintf("%02d", hour-hour%amedasFileHours),
	}, nil
}

// Fetch retrieves and parses the latest timestamp.
func (v *LatestTimeVendor) Fetch(ctx context.Context, client *http.Client) (Bucket, error) {
	res, err := Fetch(ctx, client, v.Name(), v.url)
	if err != nil {
		return Bucket{}, err
	}
	return v.Parse(res.Body)
}

// SnapshotVendor parses one AMeDAS station file and broadcasts its newest
// observation across the grid.
type SnapshotVendor struct {
	urlTemplate string
	station     string
	bucket      Bucket
}

func NewSnapshotVendor(urlTemplate, station string, bucket Bucket) *SnapshotVendor {
	if urlTemplate == "" {
		urlTemplate = DefaultAmedasURL
	}
	if station == "" {
		station = OsakaStation
	}
	return &SnapshotVendor{urlTemplate: urlTemplate, station: station, bucket: bucket}
}

func (v *SnapshotVendor) Name() string { return "amedas" }

func (v *SnapshotVendor) Station() string { return v.station }

func (v *SnapshotVendor) URL() string {
	return strings.NewReplacer(
		"{stnid}", v.station,
		"{yyyymmdd}", v.bucket.Date,
		"{h3}", v.bucket.Hour,
	).Replace(v.urlTemplate)
}

// Parse selects the greatest observation key in the file and writes it into
// the amedas field of every hour. An empty file leaves the grid untouched.
func (v *SnapshotVendor) Parse(body []byte, g *grid.Grid) error {
	snap, ok, err := v.Latest(body)
	if err != nil {
		return err
	}
	if ok {
		g.Broadcast(snap)
	}
	return nil
}

// Latest decodes the newest observation in body.
func (v *SnapshotVendor) Latest(body []byte) (grid.Snapshot, bool, error) {
	if !gjson.ValidBytes(body) {
		return grid.Snapshot{}, false, &ParseError{Vendor: v.Name(), Err: errors.New("invalid json")}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return grid.Snapshot{}, false, &ParseError{Vendor: v.Name(), Err: errors.New("expected object keyed by observation time")}
	}

	var latestKey string
	var latest gjson.Result
	root.ForEach(func(key, value gjson.Result) bool {
		if k := key.String(); k > latestKey {
			latestKey = k
			latest = value
		}
		return true
	})
	if latestKey == "" {
		return grid.Snapshot{}, false, nil
	}

	date, clock := decodeObservationKey(latestKey)
	return grid.Snapshot{
		Date:     date,
		Time:     clock,
		Temp:     element(latest, "temp"),
		Pressure: element(latest, "pressure"),
		Humidity: element(latest, "humidity"),
		Precipitation: grid.Precipitation{
			Day:  element(latest, "precipitation24h"),
			Hour: element(latest, "precipitation1h"),
		},
		Wind: element(latest, "wind"),
	}, true, nil
}

// element returns the value half of an AMeDAS [value, qc] pair.
func element(obs gjson.Result, name string) *float64 {
	r := obs.Get(name + ".0")
	if r.Type != gjson.Number {
		return nil
	}
	f := r.Float()
	return &f
}

// decodeObservationKey splits a YYYYMMDDHHMMSS key into "YYYY-MM-DD HH:MM:SS"
// and "HH:MM". Malformed keys decode to "-".
func decodeObservationKey(key string) (date, clock string) {
	if len(key) != 14 {
		return "-", "-"
	}
	year, month, day := key[0:4], key[4:6], key[6:8]
	hour, minute, second := key[8:10], key[10:12], key[12:14]
	return fmt.Sprintf("%s-%s-%s %s:%s:%s", year, month, day, hour, minute, second),
		hour + ":" + minute
}

// SnapshotObservation converts a snapshot into a storable observation with
// quality flags applied.
func SnapshotObservation(station string, snap grid.Snapshot) (models.Observation, error) {
	observedAt, err := dateutil.Parse(snap.Date, "")
	if err != nil {
		return models.Observation{}, &ParseError{Vendor: "amedas", Err: err}
	}
	obs := models.Observation{
		StationID:  station,
		ObservedAt: observedAt.Time(),
		Temp:       nullFloat(snap.Temp),
		Pressure:   nullFloat(snap.Pressure),
		Humidity:   nullFloat(snap.Humidity),
		WindSpeed:  nullFloat(snap.Wind),
		Precip1h:   nullFloat(snap.Precipitation.Hour),
		Precip24h:  nullFloat(snap.Precipitation.Day),
	}
	if flags := QualityFlagsToJSON(ValidateObservation(&obs)); flags != "" {
		obs.QualityFlags = sql.NullString{String: flags, Valid: true}
	}
	return obs, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
