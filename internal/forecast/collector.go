// Package forecast runs reconciliation cycles: it fetches every vendor,
// folds their payloads into a grid and reduces the grid to a display summary.
package forecast

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tobitamap/weather/internal/grid"
	"github.com/tobitamap/weather/internal/httputil"
	"github.com/tobitamap/weather/internal/ingest"
)

// Cycle is the complete result of one successful reconciliation.
type Cycle struct {
	ID        string
	StartedAt time.Time
	Bucket    ingest.Bucket
	Station   string
	Grid      *grid.Grid
	Display   Display
	// Snapshot is the broadcast AMeDAS observation, nil when none was parsed.
	Snapshot *grid.Snapshot
	// Fetches lists every successful response in the cycle, the
	// prerequisite timestamp included.
	Fetches []*ingest.FetchResult
}

type Collector struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewCollector returns a Collector. A nil client uses the shared default
// client; a nil clock uses time.Now.
func NewCollector(cfg Config, client *http.Client, now func() time.Time) *Collector {
	if client == nil {
		client = httputil.NewClient()
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{cfg: cfg, client: client, now: now}
}

// LatestBucket fetches the AMeDAS latest-time feed. Failure is not fatal:
// it yields a zero Bucket and the result is nil.
func (c *Collector) LatestBucket(ctx context.Context) (ingest.Bucket, *ingest.FetchResult) {
	v := ingest.NewLatestTimeVendor(c.cfg.LatestTimeURL)
	res, err := ingest.Fetch(ctx, c.client, v.Name(), v.URL())
	if err != nil {
		log.Printf("collector: latest observation time unavailable: %v", err)
		return ingest.Bucket{}, nil
	}
	bucket, err := v.Parse(res.Body)
	if err != nil {
		log.Printf("collector: latest observation time unreadable: %v", err)
		return ingest.Bucket{}, res
	}
	return bucket, res
}

// Vendors returns the main vendors for a cycle in parse order. The snapshot
// vendor is omitted when the bucket is unknown.
func (c *Collector) Vendors(bucket ingest.Bucket) []ingest.Vendor {
	vendors := []ingest.Vendor{ingest.NewForecastVendor(c.cfg.ForecastURL, c.cfg.AreaCode)}
	if !bucket.IsZero() {
		vendors = append(vendors, ingest.NewSnapshotVendor(c.cfg.AmedasURL, c.cfg.Station, bucket))
	}
	vendors = append(vendors, ingest.NewHourlyModelVendor(
		c.cfg.OpenMeteoURL, c.cfg.Latitude, c.cfg.Longitude, c.cfg.Timezone, c.cfg.Offset))
	return vendors
}

// Run executes one cycle. The main fetches run concurrently and the first
// failure cancels the rest. Either a complete Cycle or an error is returned.
func (c *Collector) Run(ctx context.Context) (*Cycle, error) {
	now := c.now()
	cycle := &Cycle{
		ID:        uuid.NewString(),
		StartedAt: now,
		Station:   c.cfg.Station,
	}

	bucket, latest := c.LatestBucket(ctx)
	cycle.Bucket = bucket
	if latest != nil {
		cycle.Fetches = append(cycle.Fetches, latest)
	}

	vendors := c.Vendors(bucket)
	results := make([]*ingest.FetchResult, len(vendors))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, v := range vendors {
		eg.Go(func() error {
			res, err := ingest.Fetch(egCtx, c.client, v.Name(), v.URL())
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.Printf("collector: cycle %s aborted: %v", cycle.ID, err)
		return nil, err
	}

	g := grid.New(now)
	for i, v := range vendors {
		if err := v.Parse(results[i].Body, g); err != nil {
			log.Printf("collector: cycle %s aborted: %v", cycle.ID, err)
			return nil, err
		}
	}
	cycle.Fetches = append(cycle.Fetches, results...)

	if rec, ok := g.Record(g.Keys()[0]); ok && rec.Amedas != nil {
		snap := *rec.Amedas
		cycle.Snapshot = &snap
	}
	cycle.Grid = g
	cycle.Display = Summarize(g, now)

	log.Printf("collector: cycle %s anchored at %s, bucket %q, %d/%d hours populated",
		cycle.ID, g.Keys()[0], bucket.Date+bucket.Hour, g.Populated(), g.Len())
	return cycle, nil
}

// WaitForForecast runs one cycle and returns only its display summary.
func (c *Collector) WaitForForecast(ctx context.Context) (*Display, error) {
	cycle, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &cycle.Display, nil
}
