package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"amberline/internal/types"
)

// defaultRequestTimeout bounds a request's context.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	staffKeyHeader,
}

// MountRoutes installs the middleware chain and every registered route.
//
// Middleware order:
//  1. Recoverer        - outermost so every panic becomes a 500 envelope.
//  2. ContextTimeout   - soft deadline for downstream work.
//  3. RequestID        - correlation ID for logs and queued alerts.
//  4. SecurityHeaders
//  5. RequestLogger    - structured access log with redacted headers.
//  6. CORS
//
// Staff authentication and submission throttling are applied per route by
// the handlers through RequireStaff and ThrottleSubmissions.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusNotFound, APIErrorResponse{Error: ErrorDetail{
			Code:      "not_found_route",
			Message:   "route not found",
			RequestID: types.GetRequestID(r.Context()),
		}})
	})

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		for _, register := range s.V1RouteRegistrars {
			register(r)
		}
	})
	for _, register := range s.RootRouteRegistrars {
		register(s.router)
	}
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
