package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/orchestrator"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Dispatcher is the part of dispatcher.Dispatcher the handlers use.
type Dispatcher interface {
	Accept(req scrape.Request) (scrape.Job, scrape.Ack, error)
	Dispatch(ctx context.Context, job scrape.Job) dispatcher.Route
	Enqueue(job scrape.Job) error
	Detach(ctx context.Context, job scrape.Job) dispatcher.Route
}

// Runner executes one extraction request in the caller's goroutine.
type Runner interface {
	Run(ctx context.Context, req scrape.Request, delivery orchestrator.Delivery) scrape.Record
}

// Config controls middleware behavior.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	CORSOrigin     string
	RequestTimeout time.Duration
}

// Dependencies are the collaborators behind the routes. Ready may be nil.
type Dependencies struct {
	Dispatcher Dispatcher
	Runner     Runner
	Store      scrape.ResultStore
	Ready      func(ctx context.Context) error
}

// Server wires HTTP handlers to the dispatcher and result store.
type Server struct {
	router     chi.Router
	dispatcher Dispatcher
	runner     Runner
	store      scrape.ResultStore
	ready      func(ctx context.Context) error
	cfg        Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		dispatcher: deps.Dispatcher,
		runner:     deps.Runner,
		store:      deps.Store,
		ready:      deps.Ready,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(cfg.CORSOrigin))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/scrape", s.submitScrape)
		r.Post("/scrape/sync", s.scrapeSync)
		r.Post("/worker", s.runWorkerJob)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/jobs", s.enqueueJob)
			r.Get("/results/{key}", s.getResult)
		})
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "postscraper.http")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
