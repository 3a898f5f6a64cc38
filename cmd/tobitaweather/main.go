package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-json"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"

	"github.com/tobitamap/weather/internal/api"
	"github.com/tobitamap/weather/internal/dateutil"
	"github.com/tobitamap/weather/internal/forecast"
	"github.com/tobitamap/weather/internal/httputil"
	"github.com/tobitamap/weather/internal/ingest"
	"github.com/tobitamap/weather/internal/notice"
	"github.com/tobitamap/weather/internal/publish"
	"github.com/tobitamap/weather/internal/scheduler"
	"github.com/tobitamap/weather/internal/store"
)

type Globals struct {
	EnvFile  kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`
	DB       string                   `help:"Path to SQLite database." default:"data/tobitaweather.db" env:"TOBITA_DB"`
	Timezone string                   `help:"Zone for local timestamps." default:"Asia/Tokyo" env:"TOBITA_TZ"`

	Vendor  VendorFlags  `embed:"" prefix:""`
	Publish PublishFlags `embed:"" prefix:"publish-"`
}

type VendorFlags struct {
	ForecastURL   string  `help:"JMA forecast URL template ({area})." default:"${forecast_url}" env:"TOBITA_FORECAST_URL"`
	Area          string  `help:"JMA office area code." default:"${area}" env:"TOBITA_AREA"`
	LatestTimeURL string  `name:"latest-time-url" help:"AMeDAS latest time URL." default:"${latest_time_url}" env:"TOBITA_LATEST_TIME_URL"`
	AmedasURL     string  `name:"amedas-url" help:"AMeDAS point URL template ({stnid}, {yyyymmdd}, {h3})." default:"${amedas_url}" env:"TOBITA_AMEDAS_URL"`
	Station       string  `help:"AMeDAS station id." default:"${station}" env:"TOBITA_STATION"`
	OpenMeteoURL  string  `name:"open-meteo-url" help:"Open-Meteo forecast URL." default:"${open_meteo_url}" env:"TOBITA_OPEN_METEO_URL"`
	Latitude      float64 `help:"Latitude for the hourly model." default:"${latitude}" env:"TOBITA_LATITUDE"`
	Longitude     float64 `help:"Longitude for the hourly model." default:"${longitude}" env:"TOBITA_LONGITUDE"`
	Offset        string  `help:"UTC offset appended to zone-less model timestamps." default:"+09:00" env:"TOBITA_OFFSET"`
}

type PublishFlags struct {
	Dir         string `help:"Write the current forecast into this directory." env:"TOBITA_PUBLISH_DIR"`
	FTPAddr     string `name:"ftp-addr" help:"FTP host:port to upload the current forecast to." env:"TOBITA_FTP_ADDR"`
	FTPUser     string `name:"ftp-user" help:"FTP user (anonymous when empty)." env:"TOBITA_FTP_USER"`
	FTPPassword string `name:"ftp-password" help:"FTP password." env:"TOBITA_FTP_PASSWORD"`
	FTPDir      string `name:"ftp-dir" help:"Remote FTP directory." default:"/" env:"TOBITA_FTP_DIR"`
}

type CycleFlags struct {
	Retry   time.Duration `help:"Give up retrying a cycle after this long (0 disables retries)." default:"2m" env:"TOBITA_RETRY"`
	PushURL string        `name:"pushgateway" help:"Prometheus pushgateway URL." env:"TOBITA_PUSHGATEWAY"`
	PushJob string        `name:"push-job" help:"Pushgateway job name." default:"tobitaweather" env:"TOBITA_PUSH_JOB"`
}

type CLI struct {
	Globals

	Collect CollectCmd `cmd:"" help:"Run one forecast cycle, persist and publish it, then exit."`
	Serve   ServeCmd   `cmd:"" help:"Run cycles on a schedule and serve the HTTP API."`
	Notice  NoticeCmd  `cmd:"" help:"Print the rain-radar notice for the latest forecast."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tobitaweather"),
		kong.Description("Hourly weather forecast reconciliation for the Tobita map."),
		kong.UsageOnError(),
		kong.Vars{
			"forecast_url":    ingest.DefaultForecastURL,
			"area":            ingest.OsakaAreaCode,
			"latest_time_url": ingest.DefaultLatestTimeURL,
			"amedas_url":      ingest.DefaultAmedasURL,
			"station":         ingest.OsakaStation,
			"open_meteo_url":  ingest.DefaultOpenMeteoURL,
			"latitude":        fmt.Sprint(ingest.OsakaLatitude),
			"longitude":       fmt.Sprint(ingest.OsakaLongitude),
			"schedule":        scheduler.DefaultSchedule,
			"place":           notice.DefaultPlace,
			"openai_model":    notice.DefaultModel,
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using JST: %v", g.Timezone, err)
		loc = time.FixedZone("JST", 9*60*60)
	}
	dateutil.SetLocation(loc)
	return loc
}

func (g *Globals) openStore(loc *time.Location) (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")
	return st, func() { db.Close() }, nil
}

func (g *Globals) collector() *forecast.Collector {
	cfg := forecast.DefaultConfig()
	cfg.ForecastURL = g.Vendor.ForecastURL
	cfg.AreaCode = g.Vendor.Area
	cfg.LatestTimeURL = g.Vendor.LatestTimeURL
	cfg.AmedasURL = g.Vendor.AmedasURL
	cfg.Station = g.Vendor.Station
	cfg.OpenMeteoURL = g.Vendor.OpenMeteoURL
	cfg.Latitude = g.Vendor.Latitude
	cfg.Longitude = g.Vendor.Longitude
	cfg.Timezone = g.Timezone
	cfg.Offset = g.Vendor.Offset
	return forecast.NewCollector(cfg, httputil.NewClient(), time.Now)
}

func (g *Globals) publisher() publish.Publisher {
	switch {
	case g.Publish.FTPAddr != "":
		return publish.NewFTPSink(g.Publish.FTPAddr, g.Publish.FTPUser, g.Publish.FTPPassword, g.Publish.FTPDir)
	case g.Publish.Dir != "":
		return publish.NewFileSink(g.Publish.Dir)
	}
	return nil
}

func (g *Globals) newScheduler(st *store.Store, loc *time.Location, flags CycleFlags) *scheduler.Scheduler {
	sched := scheduler.New(g.collector(), st, loc)
	if p := g.publisher(); p != nil {
		sched.SetPublisher(p)
	}
	sched.SetRetry(flags.Retry)
	if flags.PushURL != "" {
		sched.SetPushgateway(flags.PushURL, flags.PushJob)
	}
	return sched
}

type CollectCmd struct {
	CycleFlags `embed:""`
}

func (c *CollectCmd) Run(g *Globals) error {
	loc := g.location()
	st, closeDB, err := g.openStore(loc)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cycle, err := g.newScheduler(st, loc, c.CycleFlags).RunOnce(ctx)
	if cycle != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(cycle.Display); encErr != nil {
			return encErr
		}
	}
	return err
}

type ServeCmd struct {
	CycleFlags `embed:""`

	Port     string `help:"HTTP server port." default:"8080" env:"PORT"`
	Schedule string `help:"Cron schedule for cycles." default:"${schedule}" env:"TOBITA_SCHEDULE"`
	NoPoll   bool   `help:"Serve stored cycles only, without scheduling new ones."`
}

func (c *ServeCmd) Run(g *Globals) error {
	loc := g.location()
	st, closeDB, err := g.openStore(loc)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := api.NewServer(st, c.Port, loc, g.Vendor.Station)
	eg, ctx := errgroup.WithContext(ctx)

	if !c.NoPoll {
		sched := g.newScheduler(st, loc, c.CycleFlags)
		sched.SetSchedule(c.Schedule)
		eg.Go(func() error { return sched.Run(ctx) })
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	eg.Go(func() error {
		log.Printf("starting server on :%s", c.Port)
		return server.Run(ctx)
	})
	return eg.Wait()
}

type NoticeCmd struct {
	Place       string `help:"Place name used in the notice." default:"${place}" env:"TOBITA_PLACE"`
	OpenAIKey   string `name:"openai-key" help:"Rewrite the notice with a chat model when set." env:"OPENAI_API_KEY"`
	OpenAIModel string `name:"openai-model" help:"Chat model used to rewrite the notice." default:"${openai_model}" env:"OPENAI_MODEL"`
}

func (c *NoticeCmd) Run(g *Globals) error {
	loc := g.location()
	st, closeDB, err := g.openStore(loc)
	if err != nil {
		return err
	}
	defer closeDB()

	var display *forecast.Display
	cycle, err := st.LatestCycle()
	if err != nil {
		return fmt.Errorf("latest cycle: %w", err)
	}
	if cycle != nil && cycle.DisplayJSON.Valid {
		display = &forecast.Display{}
		if err := json.Unmarshal([]byte(cycle.DisplayJSON.String), display); err != nil {
			return fmt.Errorf("decode display for cycle %s: %w", cycle.ID, err)
		}
	}

	text := notice.Compose(c.Place, display)
	if c.OpenAIKey != "" {
		polisher, err := notice.NewPolisher(c.OpenAIKey, c.OpenAIModel)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text = polisher.PolishOrKeep(ctx, text)
	}

	fmt.Println(text)
	return nil
}
