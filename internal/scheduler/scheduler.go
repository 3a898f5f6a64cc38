// Package scheduler runs forecast cycles on a schedule and records their
// results.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/forecast"
	"github.com/tobitamap/weather/internal/ingest"
	"github.com/tobitamap/weather/internal/metrics"
	"github.com/tobitamap/weather/internal/models"
	"github.com/tobitamap/weather/internal/publish"
	"github.com/tobitamap/weather/internal/store"
)

// DefaultSchedule runs a cycle five minutes past every hour.
const DefaultSchedule = "5 * * * *"

type Scheduler struct {
	collector *forecast.Collector
	store     *store.Store
	publisher publish.Publisher
	loc       *time.Location
	schedule  string
	maxRetry  time.Duration
	pushURL   string
	pushJob   string

	newBackOff func() backoff.BackOff
}

func New(collector *forecast.Collector, st *store.Store, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = dateutil.Location()
	}
	s := &Scheduler{
		collector: collector,
		store:     st,
		loc:       loc,
		schedule:  DefaultSchedule,
		maxRetry:  2 * time.Minute,
	}
	s.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = s.maxRetry
		return bo
	}
	return s
}

// SetPublisher configures where the display summary is published after each
// successful cycle.
func (s *Scheduler) SetPublisher(p publish.Publisher) {
	s.publisher = p
}

// SetSchedule sets the cron expression used by Run.
func (s *Scheduler) SetSchedule(spec string) {
	if spec != "" {
		s.schedule = spec
	}
}

// SetRetry bounds the total time spent retrying a failed cycle. Zero
// disables retries.
func (s *Scheduler) SetRetry(maxElapsed time.Duration) {
	s.maxRetry = maxElapsed
}

// SetPushgateway enables pushing metrics after every cycle.
func (s *Scheduler) SetPushgateway(url, job string) {
	s.pushURL = url
	s.pushJob = job
}

// RunOnce runs a cycle, retrying transport failures. Parse failures are not
// retried. On success the cycle is stored and published; a publish failure
// is returned together with the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (*forecast.Cycle, error) {
	started := time.Now()

	var cycle *forecast.Cycle
	operation := func() error {
		c, err := s.collector.Run(ctx)
		if err != nil {
			var pe *ingest.ParseError
			if errors.As(err, &pe) {
				return backoff.Permanent(err)
			}
			return err
		}
		cycle = c
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if s.maxRetry > 0 {
		bo = s.newBackOff()
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("scheduler: cycle failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		s.recordFailure(started, err)
		s.push(ctx)
		return nil, err
	}

	metrics.CyclesTotal.WithLabelValues("success").Inc()
	metrics.PopulatedHours.Set(float64(cycle.Grid.Populated()))

	displayJSON, err := json.Marshal(cycle.Display)
	if err != nil {
		return cycle, fmt.Errorf("marshal display: %w", err)
	}
	s.persist(cycle, displayJSON)

	var publishErr error
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, publish.CurrentForecastKey, displayJSON); err != nil {
			metrics.PublishTotal.WithLabelValues("failure").Inc()
			log.Printf("scheduler: publish %s: %v", publish.CurrentForecastKey, err)
			publishErr = fmt.Errorf("publish: %w", err)
		} else {
			metrics.PublishTotal.WithLabelValues("success").Inc()
			log.Printf("scheduler: published %s (%d bytes)", publish.CurrentForecastKey, len(displayJSON))
		}
	}

	s.push(ctx)
	return cycle, publishErr
}

func (s *Scheduler) persist(cycle *forecast.Cycle, displayJSON []byte) {
	gridJSON, err := json.Marshal(cycle.Grid)
	if err != nil {
		log.Printf("scheduler: marshal grid: %v", err)
	}

	row := models.Cycle{
		ID:          cycle.ID,
		StartedAt:   cycle.StartedAt,
		AnchorHour:  cycle.Grid.Keys()[0],
		Success:     true,
		DisplayJSON: sql.NullString{String: string(displayJSON), Valid: true},
		GridJSON:    sql.NullString{String: string(gridJSON), Valid: err == nil},
	}
	if !cycle.Bucket.IsZero() {
		row.AmedasBucket = sql.NullString{String: cycle.Bucket.Date + "_" + cycle.Bucket.Hour, Valid: true}
	}
	if cycle.Snapshot != nil {
		row.ObservedAt = sql.NullString{String: cycle.Snapshot.Date, Valid: true}
	}
	if err := s.store.SaveCycle(row); err != nil {
		log.Printf("scheduler: save cycle %s: %v", cycle.ID, err)
	}

	for _, res := range cycle.Fetches {
		s.recordFetch(cycle.ID, res)
	}

	if cycle.Snapshot != nil {
		s.recordObservation(cycle)
	}
}

func (s *Scheduler) recordFetch(cycleID string, res *ingest.FetchResult) {
	run, err := s.store.StartIngestRun(cycleID, res.Vendor, res.URL)
	if err != nil {
		log.Printf("scheduler: start ingest run %s: %v", res.Vendor, err)
		return
	}
	run.Success = true
	run.HTTPStatus = sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: true}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(res.ResponseSize), Valid: true}
	run.DurationMS = sql.NullInt64{Int64: res.Duration.Milliseconds(), Valid: true}
	if err := s.store.CompleteIngestRun(run); err != nil {
		log.Printf("scheduler: complete ingest run %s: %v", res.Vendor, err)
	}

	if len(res.Body) > 0 {
		if _, err := s.store.StoreRawPayload(run.ID, res.Vendor, res.URL, res.Body); err != nil {
			log.Printf("scheduler: store %s raw payload: %v", res.Vendor, err)
		}
	}
}

func (s *Scheduler) recordObservation(cycle *forecast.Cycle) {
	snap := *cycle.Snapshot
	obs, err := ingest.SnapshotObservation(cycle.Station, snap)
	if err != nil {
		log.Printf("scheduler: snapshot observation: %v", err)
		return
	}
	obs.CycleID = sql.NullString{String: cycle.ID, Valid: true}
	if obs.QualityFlags.Valid {
		log.Printf("scheduler: observation %s at %s flagged %s", obs.StationID, snap.Date, obs.QualityFlags.String)
	}

	inserted, err := s.store.InsertObservation(obs)
	if err != nil {
		log.Printf("scheduler: insert observation: %v", err)
		return
	}
	if inserted {
		log.Printf("scheduler: stored observation %s at %s", obs.StationID, snap.Date)
	}

	metrics.RecordObservation(obs.StationID, obs.ObservedAt, snap.Temp, snap.Pressure, snap.Precipitation.Hour)
}

func (s *Scheduler) recordFailure(started time.Time, cause error) {
	id := uuid.NewString()
	row := models.Cycle{
		ID:           id,
		StartedAt:    started,
		AnchorHour:   dateutil.From(started).TruncateHour().String(),
		ErrorMessage: sql.NullString{String: cause.Error(), Valid: true},
	}
	if err := s.store.SaveCycle(row); err != nil {
		log.Printf("scheduler: save failed cycle: %v", err)
	}

	vendor, url := "unknown", ""
	var fe *ingest.FetchError
	var pe *ingest.ParseError
	switch {
	case errors.As(cause, &fe):
		vendor, url = fe.Vendor, fe.URL
	case errors.As(cause, &pe):
		vendor = pe.Vendor
	}
	run, err := s.store.StartIngestRun(id, vendor, url)
	if err != nil {
		log.Printf("scheduler: start ingest run %s: %v", vendor, err)
		return
	}
	if fe != nil && fe.Status != 0 {
		run.HTTPStatus = sql.NullInt64{Int64: int64(fe.Status), Valid: true}
	}
	run.ErrorMessage = sql.NullString{String: cause.Error(), Valid: true}
	if err := s.store.CompleteIngestRun(run); err != nil {
		log.Printf("scheduler: complete ingest run %s: %v", vendor, err)
	}
}

func (s *Scheduler) push(ctx context.Context) {
	if s.pushURL == "" {
		return
	}
	if err := metrics.Push(ctx, s.pushURL, s.pushJob); err != nil {
		log.Printf("scheduler: %v", err)
	}
}

// Run executes a cycle immediately and then on the configured schedule
// until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.schedule, func() { s.runLogged(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}

	s.runLogged(ctx)
	c.Start()
	log.Printf("scheduler: running on schedule %q (%s)", s.schedule, s.loc)

	<-ctx.Done()
	log.Println("scheduler: shutting down")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("scheduler: cycle failed: %v", err)
	}
}
