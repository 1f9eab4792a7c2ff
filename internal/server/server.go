// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// main.go builds the engine, gateway and history store and hands them over
// as Deps. Everything the server receives through Closers is closed, in order,
// once the HTTP server has drained.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/code-runner/internal/auth"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/handler"
	"github.com/sakif/code-runner/internal/middleware"
)

// Config holds server configuration.
type Config struct {
	Port int
	// RateLimit is requests per second on the run and llm routes. 0 disables it.
	RateLimit float64
	RateBurst int
	// JWTSecret turns on bearer-token auth for every route except /health.
	JWTSecret       string
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the routes call into.
type Deps struct {
	Executor  executor.Executor
	Completer handler.Completer
	History   handler.HistoryReader
	Backends  handler.BackendStatus
	Session   handler.SessionController
	// Closers are closed in order after shutdown.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
	tokens *auth.TokenService
}

// New creates a new Server with the given config.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("setting up auth: %w", err)
		}
		s.tokens = tokens
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the router. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health                → backend availability and session state
// POST   /run, /api/run         → execute code
// POST   /llm, /api/llm         → prompt completion
// POST   /api/session/restart   → discard the persistent session
// GET    /api/history           → recorded runs
// GET    /api/history/{id}      → one recorded run
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID - assigns unique ID to each request (for tracing)
// 2. RealIP - extracts real client IP from proxy headers
// 3. Recoverer - catches panics and returns 500 instead of crashing
// 4. Logger - logs each request with timing info
// 5. CORS - the editor plugin calls from an app:// origin
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	executeHandler := handler.NewExecuteHandler(s.deps.Executor, s.logger)
	completionHandler := handler.NewCompletionHandler(s.deps.Completer, s.logger)
	healthHandler := handler.NewHealthHandler(s.deps.Backends, s.deps.Session)
	historyHandler := handler.NewHistoryHandler(s.deps.History)

	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Group(func(r chi.Router) {
		if s.tokens != nil {
			r.Use(auth.RequireToken(s.tokens, s.logger))
		}

		// Running code and calling LLMs are the expensive routes.
		r.Group(func(r chi.Router) {
			if s.config.RateLimit > 0 {
				r.Use(middleware.RateLimit(s.config.RateLimit, s.config.RateBurst, s.logger))
			}
			r.Post("/run", executeHandler.HandleExecute)
			r.Post("/api/run", executeHandler.HandleExecute)
			r.Post("/llm", completionHandler.HandleComplete)
			r.Post("/api/llm", completionHandler.HandleComplete)
		})

		r.Post("/api/session/restart", healthHandler.HandleRestartSession)
		r.Get("/api/history", historyHandler.HandleList)
		r.Get("/api/history/{id}", historyHandler.HandleGetByID)
	})
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (ShutdownTimeout)
// 3. Close the session engine, sandbox and history database
func (s *Server) Start() error {
	defer s.closeDeps()

	// Remote completions may take up to a minute; the write timeout sits above that.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d/run", s.config.Port)),
			slog.Bool("auth", s.tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeDeps() {
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close dependency", slog.String("error", err.Error()))
		}
	}
}
