package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-tracker-service/internal/aggregate"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShelterLister reads the shelter directory.
type ShelterLister interface {
	ListShelters(ctx context.Context, filter domain.ShelterFilter) ([]domain.Shelter, error)
}

// StormReader builds the read-side storm views from stored artifacts.
type StormReader interface {
	LegacyStormMap(ctx context.Context) map[string]aggregate.LegacyStorm
	BuildFeatureCollection(ctx context.Context) *geojson.FeatureCollection
	CurrentStormTypes(ctx context.Context) aggregate.Passthrough
}

// Options configures routing and middleware.
type Options struct {
	Addr string

	// StaticURLPrefix is the URL path the artifact directory is served under.
	StaticURLPrefix string
	DataDir         string

	CORSAllowedOrigins []string
	// RateLimitPerMinute caps /api requests per client IP. Zero disables it.
	RateLimitPerMinute int
}

// Server exposes the storm and shelter API plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	shelters   ShelterLister
	storms     StormReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(opts Options, shelters ShelterLister, storms StormReader, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		shelters: shelters,
		storms:   storms,
		logger:   logger.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}

		r.Get("/shelters/", s.handleShelters)
		r.Get("/storms/", s.handleStorms)
		r.Get("/storms.geojson", s.handleStormsGeoJSON)
		r.Get("/nhc/current", s.handleFeedPassthrough)
	})

	if opts.StaticURLPrefix != "" && opts.DataDir != "" {
		prefix := opts.StaticURLPrefix
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		files := http.StripPrefix(prefix, http.FileServer(http.Dir(opts.DataDir)))
		r.Get(prefix+"*", files.ServeHTTP)
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// The aggregate endpoint re-queries the live feed.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
