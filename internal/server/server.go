// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and a logger, then Server.New() creates:
//
//	sqlite.DB ──┬─ SnippetService  → SnippetHandler
//	            ├─ CategoryDB → CategoryService → CategoryHandler
//	            └─ UserDB → AuthService → AuthHandler
//	                          └─ auth.Gate (guards every /api route except register/login)
//
//	redis.Client (optional) → RateLimit middleware, readiness check
//	prometheus.Registry     → Metrics middleware, /metrics
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/snippet-manager/internal/auth"
	"github.com/sakif/snippet-manager/internal/config"
	"github.com/sakif/snippet-manager/internal/handler"
	"github.com/sakif/snippet-manager/internal/middleware"
	sqliteRepo "github.com/sakif/snippet-manager/internal/repository/sqlite"
	"github.com/sakif/snippet-manager/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when configured, the Redis
// client. Both are released by Close, which Start calls on shutdown.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	redis    *redis.Client // nil when REDIS_ADDR is unset
	registry *prometheus.Registry
}

// New creates a new Server with the given config.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		// Redis being down at startup is not fatal: the limiter fails open.
		if err := s.redis.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting will fail open",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.setupRoutes(); err != nil {
		s.Close() // Clean up DB and Redis if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the fully wired router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health/live            → Liveness check
// GET    /health/ready           → Readiness check (database, redis)
// GET    /metrics                → Prometheus metrics (if enabled)
// POST   /api/register           → Create account          (rate limited)
// POST   /api/login              → Exchange password for JWT (rate limited)
// GET    /api/me                 → Current user            (bearer)
// GET    /api/categories         → List categories         (bearer)
// POST   /api/categories         → Create category         (bearer)
// GET    /api/snippets           → List own snippets       (bearer)
// POST   /api/snippets           → Create snippet          (bearer)
// GET    /api/snippets/{id}      → Get snippet             (bearer)
// PUT    /api/snippets/{id}      → Partial update          (bearer)
// DELETE /api/snippets/{id}      → Delete snippet          (bearer)
// GET    /auth/github/login      → Start GitHub OAuth      (if configured)
// GET    /auth/github/callback   → Finish GitHub OAuth     (if configured)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers (the rate limiter keys on it)
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
// 5. Metrics — counts requests per route pattern
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	if s.config.Metrics.Enabled {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := middleware.NewMetrics(s.registry)
		s.router.Use(metrics.Handler)
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// === Auth primitives ===
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(s.config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHub.ClientID != "" {
		github = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.GitHub.CallbackURL,
		)
	}

	// === Services and handlers ===
	// The handler never touches the database directly.
	// The service never touches HTTP.
	authService := service.NewAuthService(s.db.Users(), tokens, passwords, s.logger)
	snippetService := service.NewSnippetService(s.db, s.logger)
	categoryService := service.NewCategoryService(s.db.Categories(), s.logger)

	gate := auth.NewGate(tokens, authService, s.logger)

	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)
	categoryHandler := handler.NewCategoryHandler(categoryService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.redis)

	// === Public credential routes ===
	// Without Redis these routes are simply not rate limited.
	credentials := chi.Chain()
	if s.redis != nil {
		limit, err := middleware.RateLimit(s.redis, s.config.RateLimit.Requests, s.config.RateLimit.Window, s.logger)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		credentials = chi.Chain(limit)
	}

	// === Routes ===
	s.router.Get("/health/live", healthHandler.HandleLiveness)
	s.router.Get("/health/ready", healthHandler.HandleReadiness)

	s.router.Route("/api", func(r chi.Router) {
		r.With(credentials...).Post("/register", authHandler.HandleRegister)
		r.With(credentials...).Post("/login", authHandler.HandleLogin)

		r.Get("/me", gate.Require(authHandler.HandleMe))

		r.Get("/categories", gate.Require(categoryHandler.HandleList))
		r.Post("/categories", gate.Require(categoryHandler.HandleCreate))

		r.Get("/snippets", gate.Require(snippetHandler.HandleList))
		r.Post("/snippets", gate.Require(snippetHandler.HandleCreate))
		r.Get("/snippets/{id}", gate.Require(snippetHandler.HandleGet))
		r.Put("/snippets/{id}", gate.Require(snippetHandler.HandleUpdate))
		r.Delete("/snippets/{id}", gate.Require(snippetHandler.HandleDelete))
	})

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Info("GITHUB_CLIENT_ID not set, GitHub login disabled")
	}

	return nil
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (ShutdownTimeout)
// 3. Close the database connection (flushes WAL, releases file lock) and Redis
//
// If we skip step 3, the database file might be left in an inconsistent state.
// The deferred Close ensures this happens even if something panics.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.DB.Path),
			slog.Bool("rate_limit", s.redis != nil),
			slog.Bool("metrics", s.config.Metrics.Enabled),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
