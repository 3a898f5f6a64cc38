package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordObservation(t *testing.T) {
	temp, pressure := 25.3, 1008.2
	at := time.Date(2024, 6, 15, 3, 20, 0, 0, time.UTC)

	RecordObservation("test-station", at, &temp, &pressure, nil)

	if got := testutil.ToFloat64(ObservedTemperature.WithLabelValues("test-station")); got != 25.3 {
		t.Errorf("temperature = %v, want 25.3", got)
	}
	if got := testutil.ToFloat64(ObservedPressure.WithLabelValues("test-station")); got != 1008.2 {
		t.Errorf("pressure = %v, want 1008.2", got)
	}
	if got := testutil.ToFloat64(ObservedAt.WithLabelValues("test-station")); got != float64(at.Unix()) {
		t.Errorf("observed at = %v, want %d", got, at.Unix())
	}

	temp = 26
	RecordObservation("test-station", at, &temp, nil, nil)
	if got := testutil.ToFloat64(ObservedPressure.WithLabelValues("test-station")); got != 1008.2 {
		t.Errorf("nil pressure should keep previous reading, got %v", got)
	}
}

func TestPush(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	CyclesTotal.WithLabelValues("success").Inc()
	if err := Push(context.Background(), srv.URL, "tobitaweather"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/metrics/job/tobitaweather") {
		t.Errorf("path = %s", gotPath)
	}
}
