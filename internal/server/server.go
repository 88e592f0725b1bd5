package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/handler"
	"github.com/leadrelay/keygate/internal/openapi"
	"github.com/leadrelay/keygate/internal/server/middleware"
	"github.com/leadrelay/keygate/internal/service"
)

// ExternalPrefix is the mount point of the key-authenticated API.
const ExternalPrefix = "/api/v1/external"

// Config holds the HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	IPRateLimit     int // requests per minute per client address; 0 disables
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:8080",
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		IPRateLimit:     600,
		Version:         "dev",
	}
}

// Resource is a business handler mounted behind the gateway at
// /api/v1/external/{Name}. The handler sees paths relative to its mount
// point and can read the caller with middleware.GetKeyContext.
type Resource struct {
	Name        string
	Description string
	Handler     http.Handler
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the router is wired to.
type Deps struct {
	Store     Pinger
	Keys      *service.KeyManager
	Limiter   *service.RateLimiter
	Usage     *service.UsageRecorder
	Sessions  *service.SessionService
	Resources []Resource
	Logger    *logrus.Logger
}

// Server is the top-level HTTP server for keygate. It owns the chi router
// and the services behind the management and external APIs.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *logrus.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps) (*Server, error) {
	seen := map[string]bool{"me": true, "openapi.json": true}
	for _, res := range deps.Resources {
		if res.Name == "" || strings.Contains(res.Name, "/") || res.Handler == nil {
			return nil, fmt.Errorf("invalid resource %q", res.Name)
		}
		if seen[res.Name] {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		seen[res.Name] = true
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders: []string{
			"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
		},
		MaxAge: 300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	keyHandler := handler.NewKeyHandler(s.deps.Keys, s.deps.Usage, s.logger)
	external := handler.NewExternalHandler(s.deps.Limiter, s.logger)

	described := make([]openapi.Resource, 0, len(s.deps.Resources))
	for _, res := range s.deps.Resources {
		described = append(described, openapi.Resource{Name: res.Name, Description: res.Description})
	}
	docs := handler.NewOpenAPIHandler(described, s.cfg.Version)

	r.Route("/api/v1", func(r chi.Router) {
		// Key management for CRM users (session JWT)
		r.Route("/api-keys", func(r chi.Router) {
			r.Use(middleware.RequireSession(s.deps.Sessions))

			r.Get("/", keyHandler.List)
			r.Post("/", keyHandler.Create)
			r.Get("/permissions", keyHandler.Permissions)
			r.Get("/{id}", keyHandler.Get)
			r.Patch("/{id}", keyHandler.Update)
			r.Delete("/{id}", keyHandler.Delete)
			r.Post("/{id}/revoke", keyHandler.Revoke)
			r.Post("/{id}/regenerate", keyHandler.Regenerate)
			r.Get("/{id}/usage", keyHandler.Usage)
		})

		// External API (API key)
		r.Route("/external", func(r chi.Router) {
			r.Use(middleware.IPGuard(s.cfg.IPRateLimit))
			r.Use(middleware.NewAuthenticator(s.deps.Keys, s.deps.Limiter, s.deps.Usage, s.logger).Handler)

			r.Get("/me", external.Me)
			r.Get("/openapi.json", docs.ServeSpec)

			for _, res := range s.deps.Resources {
				mount := ExternalPrefix + "/" + res.Name
				h := stripMount(mount, res.Handler)
				r.Route("/"+res.Name, func(r chi.Router) {
					r.Use(middleware.RequireMethodPermission(res.Name))
					r.Handle("/", h)
					r.Handle("/*", h)
				})
			}
		})
	})

	s.router = r
}

// stripMount removes the mount prefix so resources see relative paths,
// always starting with "/".
func stripMount(prefix string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		p := strings.TrimPrefix(r.URL.Path, prefix)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		r2.URL.Path = p
		r2.URL.RawPath = ""
		h.ServeHTTP(w, r2)
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.deps.Store == nil {
		checks["store"] = "not configured"
		status = "degraded"
	} else if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("readiness check failed")
		checks["store"] = "unreachable"
		status = "degraded"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
// It then performs a graceful shutdown, draining in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Addr).Info("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for cancellation or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
