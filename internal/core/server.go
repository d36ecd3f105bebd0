// Package core provides the HTTP chassis for the Amberline API. It owns the
// chi router, the middleware chain, JSON response helpers and request
// validation. Domain handlers register themselves through route registrars so
// that core never imports them.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amberline/internal/config"
)

// RouteRegistrar mounts a group of routes on a router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and the cross-cutting dependencies used by the
// middleware chain.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// StaffKeyHash is the bcrypt hash the X-API-Key header is compared with.
	StaffKeyHash []byte

	// SubmissionLimiter throttles anonymous submissions per client IP. Nil
	// disables throttling.
	SubmissionLimiter SubmissionLimiter

	HealthChecks []HealthCheck

	// V1RouteRegistrars are mounted under /v1; RootRouteRegistrars at the
	// top level (verification links live outside the versioned API).
	V1RouteRegistrars   []RouteRegistrar
	RootRouteRegistrars []RouteRegistrar

	// Closers are released in order on Shutdown.
	Closers []func() error

	router *chi.Mux
}

// NewServer validates required dependencies and prepares an empty router.
// Callers add registrars and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:       cfg,
		Logger:       logger,
		Validator:    NewValidator(logger),
		StaffKeyHash: []byte(cfg.Security.StaffAPIKeyHash.Unmask()),
		router:       chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases registered resources. The first error is returned after
// every closer has run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing server resource", "error", err)
			if first == nil {
				first = fmt.Errorf("shutdown: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
