// Package api serves first-occurrence queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/constants"
	"github.com/0xmhha/skipindex-go/internal/logger"
	apimiddleware "github.com/0xmhha/skipindex-go/pkg/api/middleware"
	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/query"
)

// IndexInfo describes the served index
type IndexInfo interface {
	Len(ctx context.Context) (uint64, error)
	Params() bloom.Params
	MaxLevels() int
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	engine   *query.Engine
	index    IndexInfo
	registry *prometheus.Registry
	limiter  *apimiddleware.RateLimiter
	router   *chi.Mux
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new API server. registry may be nil when metrics are disabled.
func NewServer(config *Config, log *zap.Logger, engine *query.Engine, index IndexInfo, registry *prometheus.Registry) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if engine == nil {
		return nil, errors.New("query engine cannot be nil")
	}
	if index == nil {
		return nil, errors.New("index cannot be nil")
	}
	if config.EnableMetrics && registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		config:   config,
		logger:   logger.WithComponent(log, logger.ComponentAPI),
		engine:   engine,
		index:    index,
		registry: registry,
		router:   chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(apimiddleware.RequestLogger(s.logger))

	if s.config.EnableRateLimit {
		s.limiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(s.limiter.Handler)
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	s.router.Use(apimiddleware.APIKeyAuth(s.config.APIKeys, []string{
		constants.DefaultHealthPath,
		constants.DefaultVersionPath,
		constants.DefaultMetricsPath,
	}, s.logger))
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Get(constants.DefaultHealthPath, s.handleHealth)
	s.router.Get(constants.DefaultVersionPath, s.handleVersion)

	if s.config.EnableMetrics {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.router.Handle(constants.DefaultMetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/index", s.handleIndex)
		r.Get("/first", s.handleFirst)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apimiddleware.WriteError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apimiddleware.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed")
	})
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ln)
}

// Serve serves requests on ln until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting API server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("metrics", s.config.EnableMetrics),
		zap.Bool("rate_limit", s.config.EnableRateLimit),
		zap.Bool("auth", len(s.config.APIKeys) > 0),
	)

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
