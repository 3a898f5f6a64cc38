package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tobitamap/weather/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}
	store := New(db, loc)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}
}

func TestInsertAndGetObservation(t *testing.T) {
	store := setupTestStore(t)

	observedAt := time.Date(2024, 6, 15, 3, 20, 0, 0, time.UTC)
	obs := models.Observation{
		StationID:  "62078",
		ObservedAt: observedAt,
		Temp:       sql.NullFloat64{Float64: 25.3, Valid: true},
		Pressure:   sql.NullFloat64{Float64: 1008.2, Valid: true},
		Humidity:   sql.NullFloat64{Float64: 60, Valid: true},
		Precip1h:   sql.NullFloat64{Float64: 0, Valid: true},
		CycleID:    sql.NullString{String: "cycle-1", Valid: true},
	}

	inserted, err := store.InsertObservation(obs)
	if err != nil {
		t.Fatalf("InsertObservation: %v", err)
	}
	if !inserted {
		t.Error("first insert should write a row")
	}

	got, err := store.GetLatestObservation("62078")
	if err != nil {
		t.Fatalf("GetLatestObservation: %v", err)
	}
	if got == nil {
		t.Fatal("GetLatestObservation returned nil")
	}
	if !got.ObservedAt.Equal(observedAt) {
		t.Errorf("ObservedAt = %v, want %v", got.ObservedAt, observedAt)
	}
	if got.Temp.Float64 != 25.3 {
		t.Errorf("Temp = %v, want 25.3", got.Temp.Float64)
	}
	if got.WindSpeed.Valid {
		t.Error("WindSpeed should be null")
	}
	if got.CycleID.String != "cycle-1" {
		t.Errorf("CycleID = %q, want cycle-1", got.CycleID.String)
	}
}

func TestInsertObservation_NoDuplicate(t *testing.T) {
	store := setupTestStore(t)

	obs := models.Observation{
		StationID:  "62078",
		ObservedAt: time.Date(2024, 6, 15, 3, 20, 0, 0, time.UTC),
		Temp:       sql.NullFloat64{Float64: 25.3, Valid: true},
	}
	if _, err := store.InsertObservation(obs); err != nil {
		t.Fatal(err)
	}

	obs.Temp = sql.NullFloat64{Float64: 99, Valid: true}
	inserted, err := store.InsertObservation(obs)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should be ignored")
	}

	got, err := store.GetLatestObservation("62078")
	if err != nil {
		t.Fatal(err)
	}
	if got.Temp.Float64 != 25.3 {
		t.Errorf("Temp = %v, want original 25.3", got.Temp.Float64)
	}
}

func TestGetLatestObservation_NoData(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetLatestObservation("62078")
	if err != nil {
		t.Fatalf("GetLatestObservation: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestGetObservations_DateRange(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		obs := models.Observation{
			StationID:  "62078",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
			Temp:       sql.NullFloat64{Float64: float64(20 + i), Valid: true},
		}
		if _, err := store.InsertObservation(obs); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetObservations("62078", base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Temp.Float64 != 21 || got[2].Temp.Float64 != 23 {
		t.Errorf("unexpected range: %v .. %v", got[0].Temp.Float64, got[2].Temp.Float64)
	}
}

func TestSaveCycle_LatestAndRecent(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2024, 6, 15, 0, 5, 0, 0, time.UTC)
	cycles := []models.Cycle{
		{
			ID:          "a",
			StartedAt:   base,
			AnchorHour:  "2024-06-15T09:00:00",
			Success:     true,
			DisplayJSON: sql.NullString{String: `{"summary":{}}`, Valid: true},
			GridJSON:    sql.NullString{String: `{}`, Valid: true},
		},
		{
			ID:           "b",
			StartedAt:    base.Add(time.Hour),
			AnchorHour:   "2024-06-15T10:00:00",
			Success:      false,
			ErrorMessage: sql.NullString{String: "fetch jma_forecast: status 503", Valid: true},
		},
	}
	for _, c := range cycles {
		if err := store.SaveCycle(c); err != nil {
			t.Fatalf("SaveCycle(%s): %v", c.ID, err)
		}
	}

	latest, err := store.LatestCycle()
	if err != nil {
		t.Fatalf("LatestCycle: %v", err)
	}
	if latest == nil || latest.ID != "a" {
		t.Fatalf("LatestCycle = %+v, want successful cycle a", latest)
	}
	if latest.DisplayJSON.String != `{"summary":{}}` {
		t.Errorf("DisplayJSON = %q", latest.DisplayJSON.String)
	}
	if !latest.FinishedAt.Valid {
		t.Error("FinishedAt should default to now")
	}

	recent, err := store.RecentCycles(10)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].ID != "b" || recent[0].ErrorMessage.String == "" {
		t.Errorf("recent[0] = %+v, want failed cycle b first", recent[0])
	}

	stats, err := store.GetCycleStats(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetCycleStats: %v", err)
	}
	if stats.Total != 2 || stats.Success != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSaveCycle_Replace(t *testing.T) {
	store := setupTestStore(t)

	c := models.Cycle{ID: "a", StartedAt: time.Now(), AnchorHour: "2024-06-15T09:00:00"}
	if err := store.SaveCycle(c); err != nil {
		t.Fatal(err)
	}
	c.Success = true
	c.DisplayJSON = sql.NullString{String: "{}", Valid: true}
	if err := store.SaveCycle(c); err != nil {
		t.Fatal(err)
	}

	recent, err := store.RecentCycles(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || !recent[0].Success {
		t.Errorf("recent = %+v, want single successful row", recent)
	}
}

func TestLatestCycle_None(t *testing.T) {
	store := setupTestStore(t)

	c, err := store.LatestCycle()
	if err != nil {
		t.Fatalf("LatestCycle: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil, got %+v", c)
	}
}

func TestIngestRun_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartIngestRun("cycle-1", "jma_forecast", "https://example.test/270000.json")
	if err != nil {
		t.Fatalf("StartIngestRun: %v", err)
	}
	if run.ID == 0 {
		t.Error("run.ID should be set")
	}

	run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	run.ResponseSizeBytes = sql.NullInt64{Int64: 1024, Valid: true}
	run.DurationMS = sql.NullInt64{Int64: 120, Valid: true}
	run.Success = true
	if err := store.CompleteIngestRun(run); err != nil {
		t.Fatalf("CompleteIngestRun: %v", err)
	}

	health, err := store.GetIngestHealth(1)
	if err != nil {
		t.Fatalf("GetIngestHealth: %v", err)
	}
	found := false
	for _, h := range health {
		if h.Vendor == "jma_forecast" {
			found = true
			if h.SuccessRuns != 1 || h.FailedRuns != 0 {
				t.Errorf("health = %+v", h)
			}
		}
	}
	if !found {
		t.Error("expected health summary for jma_forecast")
	}
}

func TestIngestRun_GetRecentErrors(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartIngestRun("", "amedas", "https://example.test/amedas.json")
	if err != nil {
		t.Fatal(err)
	}
	run.HTTPStatus = sql.NullInt64{Int64: 500, Valid: true}
	run.ErrorMessage = sql.NullString{String: "fetch amedas: status 500", Valid: true}
	if err := store.CompleteIngestRun(run); err != nil {
		t.Fatal(err)
	}

	errs, err := store.GetRecentIngestErrors(10)
	if err != nil {
		t.Fatalf("GetRecentIngestErrors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	if errs[0].CycleID.Valid {
		t.Error("CycleID should be null")
	}
	if errs[0].ErrorMessage.String != "fetch amedas: status 500" {
		t.Errorf("ErrorMessage = %q", errs[0].ErrorMessage.String)
	}
}

func TestRawPayload_RoundTripAndDedupe(t *testing.T) {
	store := setupTestStore(t)

	payload := []byte(`{"20240615122000":{"temp":[25.3,0]}}`)
	id, err := store.StoreRawPayload(1, "amedas", "https://example.test/a.json", payload)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("first payload should be stored")
	}

	got, err := store.GetRawPayload(id)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}

	dup, err := store.StoreRawPayload(2, "amedas", "https://example.test/a.json", payload)
	if err != nil {
		t.Fatalf("duplicate StoreRawPayload: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}

	p, err := store.GetRawPayloadByHash(PayloadHash(payload))
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Vendor != "amedas" || p.IngestRunID.Int64 != 1 {
		t.Errorf("GetRawPayloadByHash = %+v", p)
	}

	deleted, err := store.CleanupOldRawPayloads(30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("fresh payload should survive cleanup, deleted %d", deleted)
	}
}
