package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tobitamap/weather/internal/grid"
	"github.com/tobitamap/weather/internal/ingest"
)

var jst = time.FixedZone("JST", 9*60*60)

const forecastBody = `[
  {
    "publishingOffice": "大阪管区気象台",
    "timeSeries": [
      {
        "timeDefines": ["2024-06-15T11:00:00+09:00", "2024-06-16T00:00:00+09:00", "2024-06-17T00:00:00+09:00"],
        "areas": [{"area": {"name": "大阪府", "code": "270000"},
                   "weatherCodes": ["101", "200", "300"],
                   "weathers": ["晴れ　時々　くもり", "くもり", "雨"],
                   "winds": ["北の風", "南の風", "西の風"]}]
      },
      {
        "timeDefines": ["2024-06-15T12:00:00+09:00", "2024-06-15T18:00:00+09:00", "2024-06-16T00:00:00+09:00", "2024-06-16T06:00:00+09:00"],
        "areas": [{"area": {"name": "大阪府", "code": "270000"}, "pops": ["10", "20", "30", "40"]}]
      }
    ]
  }
]`

const amedasBody = `{
  "20240615121000": {"temp": [25.0, 0]},
  "20240615122000": {"temp": [25.3, 0], "pressure": [1008.2, 0], "humidity": [60, 0],
                     "precipitation1h": [0.0, 0], "precipitation24h": [1.5, 0], "wind": [2.1, 0]}
}`

func openMeteoBody() string {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, jst)
	var times, temps []string
	for i := 0; i < 24; i++ {
		times = append(times, `"`+start.Add(time.Duration(i)*time.Hour).Format("2006-01-02T15:04")+`"`)
		temps = append(temps, fmt.Sprintf("%g", 20+float64(i)*0.5))
	}
	return `{"hourly": {"time": [` + strings.Join(times, ",") + `], "temperature_2m": [` + strings.Join(temps, ",") + `]}}`
}

type vendorServer struct {
	*httptest.Server
	latestStatus    int
	forecastStatus  int
	forecastBody    string
	openMeteoStatus int
	amedasHits      atomic.Int32
}

func newVendorServer(t *testing.T) *vendorServer {
	t.Helper()
	vs := &vendorServer{
		latestStatus:    http.StatusOK,
		forecastStatus:  http.StatusOK,
		forecastBody:    forecastBody,
		openMeteoStatus: http.StatusOK,
	}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/latest_time.txt":
			w.WriteHeader(vs.latestStatus)
			w.Write([]byte("2024-06-15T12:20:00+09:00"))
		case r.URL.Path == "/forecast/270000.json":
			w.WriteHeader(vs.forecastStatus)
			w.Write([]byte(vs.forecastBody))
		case r.URL.Path == "/amedas/62078/20240615_12.json":
			vs.amedasHits.Add(1)
			w.Write([]byte(amedasBody))
		case r.URL.Path == "/v1/forecast":
			if r.URL.Query().Get("hourly") != "temperature_2m" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			w.WriteHeader(vs.openMeteoStatus)
			w.Write([]byte(openMeteoBody()))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(vs.Close)
	return vs
}

func (vs *vendorServer) config() Config {
	cfg := DefaultConfig()
	cfg.ForecastURL = vs.URL + "/forecast/{area}.json"
	cfg.LatestTimeURL = vs.URL + "/latest_time.txt"
	cfg.AmedasURL = vs.URL + "/amedas/{stnid}/{yyyymmdd}_{h3}.json"
	cfg.OpenMeteoURL = vs.URL + "/v1/forecast"
	return cfg
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCollector_Run(t *testing.T) {
	vs := newVendorServer(t)
	now := time.Date(2024, 6, 15, 12, 30, 0, 0, jst)
	c := NewCollector(vs.config(), vs.Client(), fixedClock(now))

	cycle, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if cycle.ID == "" {
		t.Error("cycle ID should be set")
	}
	if cycle.Bucket.Date != "20240615" || cycle.Bucket.Hour != "12" {
		t.Errorf("bucket = %+v", cycle.Bucket)
	}
	if len(cycle.Fetches) != 4 {
		t.Errorf("len(Fetches) = %d, want 4", len(cycle.Fetches))
	}
	if cycle.Grid.Keys()[0] != "2024-06-15T12:00:00" {
		t.Errorf("anchor = %s", cycle.Grid.Keys()[0])
	}
	if cycle.Snapshot == nil || cycle.Snapshot.Date != "2024-06-15 12:20:00" {
		t.Fatalf("snapshot = %+v", cycle.Snapshot)
	}

	for _, key := range cycle.Grid.Keys() {
		r, _ := cycle.Grid.Record(key)
		if r.Amedas == nil || r.Amedas.Time != "12:20" {
			t.Fatalf("%s: amedas not broadcast", key)
		}
	}

	d := cycle.Display
	wantSummary := Summary{Code: "101.svg", Date: "12:20", Pops: "10％", Temp: "25.3℃"}
	if d.Summary != wantSummary {
		t.Errorf("summary = %+v, want %+v", d.Summary, wantSummary)
	}
	if d.Current.Date != "12:20の天気" || d.Current.Weathers != "晴れ　時々　くもり" {
		t.Errorf("current = %+v", d.Current)
	}
	if d.Current.Pressure != "気圧 1008.2hpa" || d.Current.Humidity != "湿度 60％" || d.Current.Wind != "風速 2.1m/s" {
		t.Errorf("current = %+v", d.Current)
	}
	if d.Current.Precipitation == nil || d.Current.Precipitation.Hour != "時間降水量 0mm" || d.Current.Precipitation.Day != "日間降水量 1.5mm" {
		t.Errorf("precipitation = %+v", d.Current.Precipitation)
	}

	wantFuture := []Future{
		{Date: "15:00", Temp: "予想気温 21.5℃", Pops: "降水確率 10％"},
		{Date: "18:00", Temp: "予想気温 23℃", Pops: "降水確率 20％"},
		{Date: "21:00", Temp: "予想気温 24.5℃", Pops: "降水確率 20％"},
		{Date: "00:00", Temp: "予想気温 26℃", Pops: "降水確率 30％"},
	}
	if len(d.Future) != len(wantFuture) {
		t.Fatalf("len(future) = %d, want %d", len(d.Future), len(wantFuture))
	}
	for i, want := range wantFuture {
		if d.Future[i] != want {
			t.Errorf("future[%d] = %+v, want %+v", i, d.Future[i], want)
		}
	}
}

func TestCollector_FailFast(t *testing.T) {
	vs := newVendorServer(t)
	vs.openMeteoStatus = http.StatusInternalServerError
	c := NewCollector(vs.config(), vs.Client(), fixedClock(time.Date(2024, 6, 15, 12, 30, 0, 0, jst)))

	cycle, err := c.Run(context.Background())
	if cycle != nil {
		t.Error("no partial cycle may be returned")
	}
	var fe *ingest.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *ingest.FetchError", err)
	}
	if fe.Vendor != "open_meteo" || fe.Status != http.StatusInternalServerError {
		t.Errorf("FetchError = %+v", fe)
	}

	display, err := c.WaitForForecast(context.Background())
	if display != nil || err == nil {
		t.Errorf("WaitForForecast = %+v, %v; want nil, error", display, err)
	}
}

func TestCollector_ParseError(t *testing.T) {
	vs := newVendorServer(t)
	vs.forecastBody = "<html>maintenance</html>"
	c := NewCollector(vs.config(), vs.Client(), fixedClock(time.Date(2024, 6, 15, 12, 30, 0, 0, jst)))

	cycle, err := c.Run(context.Background())
	if cycle != nil {
		t.Error("no partial cycle may be returned")
	}
	var pe *ingest.ParseError
	if !errors.As(err, &pe) || pe.Vendor != "jma_forecast" {
		t.Fatalf("err = %v, want jma_forecast ParseError", err)
	}
}

func TestCollector_PrerequisiteUnavailable(t *testing.T) {
	vs := newVendorServer(t)
	vs.latestStatus = http.StatusNotFound
	c := NewCollector(vs.config(), vs.Client(), fixedClock(time.Date(2024, 6, 15, 12, 30, 0, 0, jst)))

	cycle, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should degrade gracefully: %v", err)
	}
	if !cycle.Bucket.IsZero() {
		t.Errorf("bucket = %+v, want zero", cycle.Bucket)
	}
	if vs.amedasHits.Load() != 0 {
		t.Error("snapshot vendor must not be fetched without a bucket")
	}
	if cycle.Snapshot != nil {
		t.Error("snapshot should be absent")
	}
	if len(cycle.Fetches) != 2 {
		t.Errorf("len(Fetches) = %d, want 2", len(cycle.Fetches))
	}

	d := cycle.Display
	if d.Summary.Date != "" || d.Summary.Temp != "" || d.Current.Temp != "" || d.Current.Precipitation != nil {
		t.Errorf("amedas-derived fields should be omitted: %+v", d)
	}
	if d.Summary.Code != "101.svg" || d.Current.Pops != "降水確率 10％" {
		t.Errorf("forecast fields should survive: %+v", d)
	}
}

func TestCollector_Vendors(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil, nil)

	names := func(vs []ingest.Vendor) string {
		var out []string
		for _, v := range vs {
			out = append(out, v.Name())
		}
		return strings.Join(out, ",")
	}
	if got := names(c.Vendors(ingest.Bucket{Date: "20240615", Hour: "12"})); got != "jma_forecast,amedas,open_meteo" {
		t.Errorf("vendors = %s", got)
	}
	if got := names(c.Vendors(ingest.Bucket{})); got != "jma_forecast,open_meteo" {
		t.Errorf("vendors without bucket = %s", got)
	}
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 6, 15, 9, 0, 0, 0, jst)

	t.Run("empty records", func(t *testing.T) {
		g := grid.New(start)
		d := Summarize(g, start)
		if d.Summary != (Summary{}) || d.Current.Precipitation != nil || d.Current.Date != "" {
			t.Errorf("display = %+v", d)
		}
		if len(d.Future) != 4 {
			t.Fatalf("len(future) = %d, want 4", len(d.Future))
		}
		if d.Future[0] != (Future{Date: "12:00"}) {
			t.Errorf("future[0] = %+v", d.Future[0])
		}
	})

	t.Run("discards past hours", func(t *testing.T) {
		g := grid.New(start)
		g.Merge("2024-06-15T09:00:00", grid.FieldPops, 6, "90")
		g.Merge("2024-06-17T08:00:00", grid.FieldPops, 6, "50")
		d := Summarize(g, time.Date(2024, 6, 17, 8, 45, 0, 0, jst))
		if d.Current.Pops != "降水確率 50％" {
			t.Errorf("current pops = %q", d.Current.Pops)
		}
		if len(d.Future) != 0 {
			t.Errorf("future = %+v, want none", d.Future)
		}
	})

	t.Run("future skipped when short", func(t *testing.T) {
		g := grid.New(start)
		d := Summarize(g, time.Date(2024, 6, 16, 22, 0, 0, 0, jst))
		if len(d.Future) != 3 {
			t.Errorf("len(future) = %d, want 3", len(d.Future))
		}
	})

	t.Run("now past window", func(t *testing.T) {
		g := grid.New(start)
		d := Summarize(g, start.Add(72*time.Hour))
		if d.Current != (Current{}) || d.Future == nil || len(d.Future) != 0 {
			t.Errorf("display = %+v", d)
		}
	})

	t.Run("unknown weather code", func(t *testing.T) {
		g := grid.New(start)
		g.Merge("2024-06-15T09:00:00", grid.FieldWeatherCodes, 6, "999")
		d := Summarize(g, start)
		if d.Summary.Code != "" {
			t.Errorf("code = %q, want empty", d.Summary.Code)
		}
	})
}
