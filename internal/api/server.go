// Package api exposes the Kestrel detection core over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Deps are the collaborators wired into the server. Repository, Cache and Bus are optional.
type Deps struct {
	Scorer     Scorer
	Engine     *rules.Engine
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus

	// RateLimit is the per-tenant request budget per minute; 0 disables it.
	RateLimit int

	// IdempotencyTTL bounds how long replayable responses are kept.
	IdempotencyTTL time.Duration
}

// maxRequestBody caps detection payloads; a full batch is far below it.
const maxRequestBody = 1 << 20

// Server represents the HTTP API server.
type Server struct {
	router *chi.Mux
	server *http.Server
	config domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps.Scorer, deps.Engine, deps.Repository, deps.Cache, deps.Bus, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(metrics.Middleware)
	router.Use(TracingMiddleware)
	router.Use(TenantMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	var limiter *cache.Limiter
	var responses *cache.Responses
	if deps.Cache != nil {
		limiter = cache.NewLimiter(deps.Cache, deps.RateLimit, time.Minute)
		responses = cache.NewResponses(deps.Cache, deps.IdempotencyTTL)
	}

	// Detection
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxRequestBody))
		r.Use(RateLimitMiddleware(limiter))
		r.Use(IdempotencyMiddleware(responses))

		r.Post("/detect-fraud", handler.DetectFraud)
		r.Post("/detect-fraud/batch", handler.DetectFraudBatch)
		r.Post("/detect-fraud-batch", handler.DetectFraudBatch)
	})

	router.Get("/models", handler.ListModels)

	// Indicator management
	router.Route("/indicators", func(r chi.Router) {
		r.Get("/", handler.ListIndicators)
		r.Post("/", handler.CreateIndicator)
		r.Post("/reload", handler.ReloadIndicators)
		r.Get("/{id}", handler.GetIndicator)
		r.Delete("/{id}", handler.DeleteIndicator)
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
