// Package server is the HTTP + WebSocket API of venuebook.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/server/handler"
	"github.com/alanyoungcy/venuebook/internal/server/middleware"
	"github.com/alanyoungcy/venuebook/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimitPerMin int    // 0 disables rate limiting
}

// Handlers aggregates every HTTP handler the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Books       *handler.BookHandler
	Signals     *handler.SignalHandler
	Simulations *handler.SimulationHandler
	Metrics     http.Handler // optional
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter and wsHub may be nil.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, h, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the routed, middleware-wrapped handler.
func Routes(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/books", h.Books.ListBooks)
	mux.HandleFunc("GET /api/books/{venue}/{instrument}", h.Books.GetBook)
	mux.HandleFunc("POST /api/books/connect", h.Books.Connect)
	mux.HandleFunc("POST /api/books/disconnect", h.Books.Disconnect)

	mux.HandleFunc("GET /api/signals", h.Signals.ListSignals)

	mux.HandleFunc("POST /api/simulations", h.Simulations.Submit)
	mux.HandleFunc("GET /api/simulations", h.Simulations.ListSimulations)
	mux.HandleFunc("GET /api/simulations/{id}", h.Simulations.GetSimulation)
	mux.HandleFunc("DELETE /api/simulations/{id}", h.Simulations.CancelSimulation)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var handler http.Handler = mux
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		handler = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(handler)
	}
	handler = middleware.Auth(cfg.APIKey)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	return handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
