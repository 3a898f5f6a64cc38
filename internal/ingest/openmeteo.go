package ingest

import (
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/grid"
)

const (
	DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

	OsakaLatitude  = 34.644
	OsakaLongitude = 135.5065
)

// HourlyModelVendor reads hourly 2 m temperature from Open-Meteo.
type HourlyModelVendor struct {
	baseURL  string
	lat      float64
	lon      float64
	timezone string
	offset   string // appended to the zone-less times Open-Meteo returns
}

func NewHourlyModelVendor(baseURL string, lat, lon float64, timezone, offset string) *HourlyModelVendor {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	if timezone == "" {
		timezone = "Asia/Tokyo"
	}
	return &HourlyModelVendor{
		baseURL:  baseURL,
		lat:      lat,
		lon:      lon,
		timezone: timezone,
		offset:   offset,
	}
}

func (v *HourlyModelVendor) Name() string { return "open_meteo" }

func (v *HourlyModelVendor) URL() string {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%g", v.lat))
	params.Set("longitude", fmt.Sprintf("%g", v.lon))
	params.Set("hourly", "temperature_2m")
	params.Set("timezone", v.timezone)
	return v.baseURL + "?" + params.Encode()
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// Parse writes each hourly temperature into the temps field of its hour,
// overwriting any previous value. Hours outside the grid are ignored.
func (v *HourlyModelVendor) Parse(body []byte, g *grid.Grid) error {
	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return &ParseError{Vendor: v.Name(), Err: fmt.Errorf("unmarshal: %w", err)}
	}

	for i, ts := range data.Hourly.Time {
		if i >= len(data.Hourly.Temperature2m) || data.Hourly.Temperature2m[i] == nil {
			continue
		}
		t, err := dateutil.Parse(ts, v.offset)
		if err != nil {
			return &ParseError{Vendor: v.Name(), Err: err}
		}
		g.SetTemp(t.String(), *data.Hourly.Temperature2m[i])
	}
	return nil
}
