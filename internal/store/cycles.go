package store

import (
	"database/sql"
	"time"

	"github.com/tobitamap/weather/internal/models"
)

// SaveCycle records a finished cycle. Saving the same id again replaces the row.
func (s *Store) SaveCycle(c models.Cycle) error {
	if !c.FinishedAt.Valid {
		c.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO forecast_cycles (id, started_at, finished_at, anchor_hour, amedas_bucket, observed_at, success, error_message, display_json, grid_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			amedas_bucket = excluded.amedas_bucket,
			observed_at = excluded.observed_at,
			success = excluded.success,
			error_message = excluded.error_message,
			display_json = excluded.display_json,
			grid_json = excluded.grid_json
	`, c.ID, c.StartedAt.UTC(), c.FinishedAt, c.AnchorHour, c.AmedasBucket, c.ObservedAt,
		c.Success, c.ErrorMessage, c.DisplayJSON, c.GridJSON)
	return err
}

const cycleColumns = `id, started_at, finished_at, anchor_hour, amedas_bucket, observed_at, success, error_message, display_json, grid_json`

func scanCycle(row interface{ Scan(...any) error }) (models.Cycle, error) {
	var c models.Cycle
	err := row.Scan(&c.ID, &c.StartedAt, &c.FinishedAt, &c.AnchorHour, &c.AmedasBucket, &c.ObservedAt,
		&c.Success, &c.ErrorMessage, &c.DisplayJSON, &c.GridJSON)
	return c, err
}

// LatestCycle returns the most recent successful cycle, or nil when none exists.
func (s *Store) LatestCycle() (*models.Cycle, error) {
	row := s.db.QueryRow(`
		SELECT ` + cycleColumns + `
		FROM forecast_cycles
		WHERE success = TRUE
		ORDER BY started_at DESC
		LIMIT 1
	`)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.StartedAt = c.StartedAt.In(s.loc)
	return &c, nil
}

// RecentCycles returns up to limit cycles, newest first, including failures.
func (s *Store) RecentCycles(limit int) ([]models.Cycle, error) {
	rows, err := s.db.Query(`
		SELECT `+cycleColumns+`
		FROM forecast_cycles
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		c.StartedAt = c.StartedAt.In(s.loc)
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// CycleStats counts cycles started since the given time.
type CycleStats struct {
	Total   int
	Success int
	Failed  int
}

func (s *Store) GetCycleStats(since time.Time) (*CycleStats, error) {
	var stats CycleStats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT success THEN 1 ELSE 0 END), 0)
		FROM forecast_cycles
		WHERE started_at >= ?
	`, since.UTC()).Scan(&stats.Total, &stats.Success, &stats.Failed)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
