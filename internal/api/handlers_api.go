package api

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tobitamap/weather/internal/models"
	"github.com/tobitamap/weather/internal/store"
)

const staleThreshold = 2 * time.Hour

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status      string         `json:"status"`
	LastCycle   *CycleHealth   `json:"last_cycle,omitempty"`
	Observation *StationHealth `json:"observation,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
}

type CycleHealth struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	AgeMinutes int       `json:"age_minutes"`
	Stale      bool      `json:"stale"`
}

// StationHealth represents the freshness of the station's observations.
type StationHealth struct {
	StationID  string    `json:"station_id"`
	LastSeen   time.Time `json:"last_seen"`
	AgeMinutes int       `json:"age_minutes"`
	Stale      bool      `json:"stale"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}
	now := time.Now()

	cycle, err := s.store.LatestCycle()
	switch {
	case err != nil:
		health.Errors = append(health.Errors, "cycles: "+err.Error())
	case cycle == nil:
		health.Status = "degraded"
	default:
		age := now.Sub(cycle.StartedAt)
		health.LastCycle = &CycleHealth{
			ID:         cycle.ID,
			StartedAt:  cycle.StartedAt,
			AgeMinutes: int(age.Minutes()),
			Stale:      age > staleThreshold,
		}
		if health.LastCycle.Stale {
			health.Status = "degraded"
		}
	}

	if s.station != "" {
		obs, err := s.store.GetLatestObservation(s.station)
		if err != nil {
			health.Errors = append(health.Errors, s.station+": "+err.Error())
		} else {
			sh := &StationHealth{StationID: s.station, AgeMinutes: -1, Stale: true}
			if obs != nil {
				sh.LastSeen = obs.ObservedAt
				sh.AgeMinutes = int(now.Sub(obs.ObservedAt).Minutes())
				sh.Stale = now.Sub(obs.ObservedAt) > staleThreshold
			}
			health.Observation = sh
		}
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}

func (s *Server) latestCycle(w http.ResponseWriter) *models.Cycle {
	cycle, err := s.store.LatestCycle()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	if cycle == nil {
		http.Error(w, "no forecast available", http.StatusNotFound)
		return nil
	}
	return cycle
}

func writeRawJSON(w http.ResponseWriter, cycle *models.Cycle, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Cycle-ID", cycle.ID)
	w.Write([]byte(body))
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	cycle := s.latestCycle(w)
	if cycle == nil {
		return
	}
	writeRawJSON(w, cycle, cycle.DisplayJSON.String)
}

func (s *Server) handleAPIGrid(w http.ResponseWriter, r *http.Request) {
	cycle := s.latestCycle(w)
	if cycle == nil {
		return
	}
	if !cycle.GridJSON.Valid {
		http.Error(w, "grid not stored for latest cycle", http.StatusNotFound)
		return
	}
	writeRawJSON(w, cycle, cycle.GridJSON.String)
}

// CycleSummary is the listing form of a stored cycle.
type CycleSummary struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	AnchorHour   string    `json:"anchor_hour"`
	AmedasBucket string    `json:"amedas_bucket,omitempty"`
	ObservedAt   string    `json:"observed_at,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

func queryInt(r *http.Request, name string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleAPICycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.store.RecentCycles(queryInt(r, "limit", 24, 500))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]CycleSummary, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, CycleSummary{
			ID:           c.ID,
			StartedAt:    c.StartedAt,
			AnchorHour:   c.AnchorHour,
			AmedasBucket: c.AmedasBucket.String,
			ObservedAt:   c.ObservedAt.String,
			Success:      c.Success,
			Error:        c.ErrorMessage.String,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// ObservationView is the JSON form of a stored observation.
type ObservationView struct {
	ObservedAt   time.Time `json:"observed_at"`
	Temp         *float64  `json:"temp,omitempty"`
	Pressure     *float64  `json:"pressure,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	WindSpeed    *float64  `json:"wind_speed,omitempty"`
	Precip1h     *float64  `json:"precip_1h,omitempty"`
	Precip24h    *float64  `json:"precip_24h,omitempty"`
	QualityFlags string    `json:"quality_flags,omitempty"`
}

func nullable(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func (s *Server) handleAPIObservations(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station")
	if stationID == "" {
		stationID = s.station
	}

	hours := queryInt(r, "hours", 24, 24*31)
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	observations, err := s.store.GetObservations(stationID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]ObservationView, 0, len(observations))
	for _, o := range observations {
		out = append(out, ObservationView{
			ObservedAt:   o.ObservedAt.In(s.loc),
			Temp:         nullable(o.Temp),
			Pressure:     nullable(o.Pressure),
			Humidity:     nullable(o.Humidity),
			WindSpeed:    nullable(o.WindSpeed),
			Precip1h:     nullable(o.Precip1h),
			Precip24h:    nullable(o.Precip24h),
			QualityFlags: o.QualityFlags.String,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// IngestReport summarizes vendor fetch health.
type IngestReport struct {
	Daily        []store.IngestHealthSummary `json:"daily"`
	RecentErrors []IngestError               `json:"recent_errors"`
}

type IngestError struct {
	Vendor    string    `json:"vendor"`
	URL       string    `json:"url,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Status    int64     `json:"http_status,omitempty"`
	Message   string    `json:"message"`
}

func (s *Server) handleAPIIngest(w http.ResponseWriter, r *http.Request) {
	daily, err := s.store.GetIngestHealth(queryInt(r, "days", 7, 90))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	runs, err := s.store.GetRecentIngestErrors(20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	report := IngestReport{Daily: daily, RecentErrors: make([]IngestError, 0, len(runs))}
	if report.Daily == nil {
		report.Daily = []store.IngestHealthSummary{}
	}
	for _, run := range runs {
		report.RecentErrors = append(report.RecentErrors, IngestError{
			Vendor:    run.Vendor,
			URL:       run.URL,
			StartedAt: run.StartedAt.In(s.loc),
			Status:    run.HTTPStatus.Int64,
			Message:   run.ErrorMessage.String,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
