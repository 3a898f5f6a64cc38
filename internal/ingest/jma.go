package ingest

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/grid"
)

const (
	// DefaultForecastURL is the JMA bosai forecast endpoint; {area} is the office code.
	DefaultForecastURL = "https://www.jma.go.jp/bosai/forecast/data/forecast/{area}.json"
	// OsakaAreaCode is the JMA office code for Osaka prefecture.
	OsakaAreaCode = "270000"
)

// ForecastVendor parses the JMA prefectural forecast: short-range and weekly
// publications whose time series have differing resolution.
type ForecastVendor struct {
	url string
}

func NewForecastVendor(urlTemplate, areaCode string) *ForecastVendor {
	if urlTemplate == "" {
		urlTemplate = DefaultForecastURL
	}
	if areaCode == "" {
		areaCode = OsakaAreaCode
	}
	return &ForecastVendor{url: strings.ReplaceAll(urlTemplate, "{area}", areaCode)}
}

func (v *ForecastVendor) Name() string { return "jma_forecast" }

func (v *ForecastVendor) URL() string { return v.url }

type jmaPublication struct {
	PublishingOffice string          `json:"publishingOffice"`
	ReportDatetime   string          `json:"reportDatetime"`
	TimeSeries       []jmaTimeSeries `json:"timeSeries"`
}

type jmaTimeSeries struct {
	TimeDefines []string  `json:"timeDefines"`
	Areas       []jmaArea `json:"areas"`
}

type jmaArea struct {
	Area struct {
		Name string `json:"name"`
		Code string `json:"code"`
	} `json:"area"`
	WeatherCodes []string `json:"weatherCodes"`
	Weathers     []string `json:"weathers"`
	Winds        []string `json:"winds"`
	Pops         []string `json:"pops"`
}

func (a *jmaArea) values(f grid.Field) []string {
	switch f {
	case grid.FieldWeathers:
		return a.Weathers
	case grid.FieldPops:
		return a.Pops
	case grid.FieldWeatherCodes:
		return a.WeatherCodes
	case grid.FieldWind:
		return a.Winds
	}
	return nil
}

// Parse expands every time series to hourly slots and merges each area's
// values into the grid under the span policy. Publications and areas are
// applied in input order.
func (v *ForecastVendor) Parse(body []byte, g *grid.Grid) error {
	var pubs []jmaPublication
	if err := json.Unmarshal(body, &pubs); err != nil {
		return &ParseError{Vendor: v.Name(), Err: fmt.Errorf("unmarshal: %w", err)}
	}

	for _, pub := range pubs {
		for _, series := range pub.TimeSeries {
			slots, err := dateutil.SeriesIterator(series.TimeDefines, "")
			if err != nil {
				return &ParseError{Vendor: v.Name(), Err: err}
			}
			for _, slot := range slots {
				rec, ok := g.Record(slot.Date)
				if !ok {
					continue
				}
				for i := range series.Areas {
					area := &series.Areas[i]
					for _, f := range grid.SpannedFields {
						values := area.values(f)
						if slot.Index >= len(values) {
							continue
						}
						grid.MergeIfFiner(rec, f, slot.Span, values[slot.Index])
					}
				}
			}
		}
	}
	return nil
}

// WeatherIcon maps a three-digit JMA weather code to an icon file name, or
// "" for unknown codes.
func WeatherIcon(code string) string {
	return weatherIcons[code]
}

var weatherIcons = map[string]string{
	"100": "100.svg", "101": "101.svg", "102": "102.svg", "103": "102.svg",
	"104": "104.svg", "105": "104.svg", "106": "102.svg", "107": "102.svg",
	"108": "102.svg", "110": "110.svg", "111": "110.svg", "112": "112.svg",
	"113": "112.svg", "114": "112.svg", "115": "115.svg", "116": "115.svg",
	"117": "115.svg", "118": "112.svg", "119": "112.svg", "120": "102.svg",
	"121": "102.svg", "122": "112.svg", "123": "100.svg", "124": "100.svg",
	"125": "112.svg", "126": "112.svg", "127": "112.svg", "128": "112.svg",
	"130": "100.svg", "131": "100.svg", "132": "101.svg", "140": "102.svg",
	"160": "104.svg", "170": "104.svg", "181": "115.svg",

	"200": "200.svg", "201": "201.svg", "202": "202.svg", "203": "202.svg",
	"204": "204.svg", "205": "204.svg", "206": "202.svg", "207": "202.svg",
	"208": "202.svg", "209": "200.svg", "210": "210.svg", "211": "210.svg",
	"212": "212.svg", "213": "212.svg", "214": "212.svg", "215": "215.svg",
	"216": "215.svg", "217": "215.svg", "218": "212.svg", "219": "212.svg",
	"220": "202.svg", "221": "202.svg", "222": "212.svg", "223": "201.svg",
	"224": "212.svg", "225": "212.svg", "226": "212.svg", "228": "215.svg",
	"229": "215.svg", "230": "215.svg", "231": "200.svg", "240": "202.svg",
	"250": "204.svg", "260": "204.svg", "270": "204.svg", "281": "215.svg",

	"300": "300.svg", "301": "301.svg", "302": "302.svg", "303": "303.svg",
	"304": "300.svg", "306": "300.svg", "308": "308.svg", "309": "303.svg",
	"311": "311.svg", "313": "313.svg", "314": "314.svg", "315": "314.svg",
	"316": "311.svg", "317": "313.svg", "320": "311.svg", "321": "313.svg",
	"322": "303.svg", "323": "311.svg", "324": "311.svg", "325": "311.svg",
	"326": "314.svg", "327": "314.svg", "328": "300.svg", "329": "300.svg",
	"340": "400.svg", "350": "300.svg", "361": "411.svg", "371": "413.svg",

	"400": "400.svg", "401": "401.svg", "402": "402.svg", "403": "403.svg",
	"405": "400.svg", "406": "406.svg", "407": "406.svg", "409": "403.svg",
	"411": "411.svg", "413": "413.svg", "414": "414.svg", "420": "411.svg",
	"421": "413.svg", "422": "414.svg", "423": "414.svg", "425": "400.svg",
	"426": "400.svg", "427": "400.svg", "450": "400.svg",
}
