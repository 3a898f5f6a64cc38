package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	VendorFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tobitaweather_vendor_fetch_total",
			Help: "Total upstream vendor fetches",
		},
		[]string{"vendor", "status"},
	)

	VendorFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tobitaweather_vendor_fetch_latency_seconds",
			Help:    "Upstream vendor fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tobitaweather_cycles_total",
			Help: "Total reconciliation cycles by result",
		},
		[]string{"result"},
	)

	PopulatedHours = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tobitaweather_grid_populated_hours",
			Help: "Hours with at least one forecast field in the latest grid",
		},
	)

	ObservedTemperature = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tobitaweather_observed_temperature_celsius",
			Help: "Latest AMeDAS air temperature",
		},
		[]string{"station"},
	)

	ObservedPressure = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tobitaweather_observed_pressure_hpa",
			Help: "Latest AMeDAS station pressure",
		},
		[]string{"station"},
	)

	ObservedPrecipitation1h = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tobitaweather_observed_precipitation_1h_mm",
			Help: "Latest AMeDAS one-hour precipitation",
		},
		[]string{"station"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tobitaweather_publish_total",
			Help: "Total forecast document publications by result",
		},
		[]string{"result"},
	)

	ObservedAt = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tobitaweather_observed_timestamp_seconds",
			Help: "Unix time of the latest AMeDAS observation",
		},
		[]string{"station"},
	)
)

// RecordObservation sets the observation gauges for station. Nil values
// leave the previous reading in place.
func RecordObservation(station string, observedAt time.Time, temp, pressure, precip1h *float64) {
	if temp != nil {
		ObservedTemperature.WithLabelValues(station).Set(*temp)
	}
	if pressure != nil {
		ObservedPressure.WithLabelValues(station).Set(*pressure)
	}
	if precip1h != nil {
		ObservedPrecipitation1h.WithLabelValues(station).Set(*precip1h)
	}
	ObservedAt.WithLabelValues(station).Set(float64(observedAt.Unix()))
}

// Push sends every registered metric to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
