// Package server exposes contractor search and lookup over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/search"
)

// Searcher ranks contractor names for a query.
type Searcher interface {
	Search(ctx context.Context, query string, threshold float64) ([]search.Match, error)
}

// Lookuper resolves one contractor with its history.
type Lookuper interface {
	Lookup(ctx context.Context, req search.LookupRequest) (*search.Detail, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the API.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string
	// Threshold is the fuzz_ratio used when a request omits it. It is used
	// as given; zero keeps every candidate.
	Threshold float64
	// RequestTimeout bounds each API request.
	RequestTimeout time.Duration
}

// Server holds the API dependencies.
type Server struct {
	searcher Searcher
	lookuper Lookuper
	pinger   Pinger
	opts     Options
	log      *zap.Logger
}

// New returns a Server. A zero RequestTimeout falls back to 30s.
func New(s Searcher, l Lookuper, p Pinger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		searcher: s,
		lookuper: l,
		pinger:   p,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Get("/fuzzy-contractor", s.fuzzyContractor)
		r.Get("/detailed-contractor", s.detailedContractor)
	})
	return r
}
