package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanbastic/go-pixelgrid/internal/auth"
	"github.com/ryanbastic/go-pixelgrid/internal/broadcast"
	"github.com/ryanbastic/go-pixelgrid/internal/history"
	"github.com/ryanbastic/go-pixelgrid/internal/metrics"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Grid     GridService
	History  history.Log
	Hub      *broadcast.Hub
	Verifier auth.Verifier
	Backends map[string]Pinger

	AllowedOrigins   []string
	FeedPingInterval time.Duration
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(logger *slog.Logger, d Deps) http.Handler {
	if d.History == nil {
		d.History = history.Discard{}
	}

	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{"Retry-After", requestIDHeader},
		MaxAge:         300,
	}))
	mux.Use(auth.Authenticate(d.Verifier, logger))

	cfg := huma.DefaultConfig("Pixelgrid API", "1.0.0")
	cfg.Info.Description = "Shared pixel canvas with per-identity write cooldown."
	// Response bodies are the bare domain types; no $schema links.
	cfg.CreateHooks = nil
	api := humachi.New(mux, cfg)

	registerGridRoutes(api, NewGridHandler(d.Grid, d.History, logger))

	feed := NewFeedHandler(d.Hub, d.AllowedOrigins, d.FeedPingInterval, logger)
	mux.Get("/v1/grid/feed", feed.ServeHTTP)

	health := NewHealthHandler(d.Backends, logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
