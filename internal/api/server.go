// Package api serves the stored forecast cycles over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tobitamap/weather/internal/store"
)

type Server struct {
	store   *store.Store
	port    string
	loc     *time.Location
	station string
}

func NewServer(store *store.Store, port string, loc *time.Location, station string) *Server {
	return &Server{
		store:   store,
		port:    port,
		loc:     loc,
		station: station,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/forecast", s.handleAPIForecast)
	mux.HandleFunc("GET /api/grid", s.handleAPIGrid)
	mux.HandleFunc("GET /api/cycles", s.handleAPICycles)
	mux.HandleFunc("GET /api/observations", s.handleAPIObservations)
	mux.HandleFunc("GET /api/ingest", s.handleAPIIngest)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
