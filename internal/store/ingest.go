package store

import (
	"database/sql"
	"time"
)

// IngestRun audits one vendor fetch within a cycle.
type IngestRun struct {
	ID                int64
	CycleID           sql.NullString
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Vendor            string // "jma_forecast", "amedas", "open_meteo", "amedas_latest"
	URL               string
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	DurationMS        sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(cycleID, vendor, url string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Vendor:    vendor,
		URL:       url,
	}
	if cycleID != "" {
		run.CycleID = sql.NullString{String: cycleID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (cycle_id, started_at, vendor, url, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.CycleID, run.StartedAt, run.Vendor, run.URL)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			duration_ms = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.DurationMS,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// IngestHealthSummary represents a daily per-vendor health summary.
type IngestHealthSummary struct {
	Date          string  `json:"date"`
	Vendor        string  `json:"vendor"`
	TotalRuns     int     `json:"total_runs"`
	SuccessRuns   int     `json:"success_runs"`
	FailedRuns    int     `json:"failed_runs"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// GetIngestHealth returns ingest health summaries for the last N days.
func (s *Store) GetIngestHealth(days int) ([]IngestHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			vendor,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM ingest_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, vendor
		ORDER BY date DESC, vendor
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestHealthSummary
	for rows.Next() {
		var h IngestHealthSummary
		if err := rows.Scan(&h.Date, &h.Vendor, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.AvgDurationMS); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentIngestErrors returns recent failed ingest runs.
func (s *Store) GetRecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, cycle_id, started_at, finished_at, vendor, url,
			   http_status, response_size_bytes, duration_ms, success, error_message
		FROM ingest_runs
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.CycleID, &r.StartedAt, &r.FinishedAt, &r.Vendor, &r.URL,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.DurationMS, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
