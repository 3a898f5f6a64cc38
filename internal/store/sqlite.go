package store

import (
	"database/sql"
	"time"

	"github.com/tobitamap/weather/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

// InsertObservation stores a snapshot observation. A second row for the same
// station and observation time is ignored; the returned bool reports whether
// a row was written.
func (s *Store) InsertObservation(obs models.Observation) (bool, error) {
	result, err := s.db.Exec(`
		INSERT INTO observations (station_id, observed_at, temp, pressure, humidity, wind_speed, precip_1h, precip_24h, quality_flags, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO NOTHING
	`, obs.StationID, obs.ObservedAt.UTC(), obs.Temp, obs.Pressure, obs.Humidity, obs.WindSpeed, obs.Precip1h, obs.Precip24h, obs.QualityFlags, obs.CycleID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const observationColumns = `id, station_id, observed_at, temp, pressure, humidity, wind_speed, precip_1h, precip_24h, quality_flags, cycle_id, created_at`

func scanObservation(row interface{ Scan(...any) error }) (models.Observation, error) {
	var obs models.Observation
	err := row.Scan(&obs.ID, &obs.StationID, &obs.ObservedAt, &obs.Temp, &obs.Pressure, &obs.Humidity,
		&obs.WindSpeed, &obs.Precip1h, &obs.Precip24h, &obs.QualityFlags, &obs.CycleID, &obs.CreatedAt)
	return obs, err
}

func (s *Store) GetLatestObservation(stationID string) (*models.Observation, error) {
	row := s.db.QueryRow(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE station_id = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, stationID)

	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	obs.ObservedAt = obs.ObservedAt.In(s.loc)
	return &obs, nil
}

func (s *Store) GetObservations(stationID string, start, end time.Time) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, stationID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		obs.ObservedAt = obs.ObservedAt.In(s.loc)
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
