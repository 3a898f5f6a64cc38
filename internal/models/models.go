package models

import (
	"database/sql"
	"time"
)

// Observation is a persisted AMeDAS snapshot.
type Observation struct {
	ID           int64
	StationID    string
	ObservedAt   time.Time
	Temp         sql.NullFloat64
	Pressure     sql.NullFloat64
	Humidity     sql.NullFloat64
	WindSpeed    sql.NullFloat64
	Precip1h     sql.NullFloat64
	Precip24h    sql.NullFloat64
	QualityFlags sql.NullString
	CycleID      sql.NullString
	CreatedAt    time.Time
}

// Cycle is one reconciliation run, successful or not.
type Cycle struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	AnchorHour   string // first grid key
	AmedasBucket sql.NullString
	ObservedAt   sql.NullString // snapshot date, when present
	Success      bool
	ErrorMessage sql.NullString
	DisplayJSON  sql.NullString
	GridJSON     sql.NullString
}
