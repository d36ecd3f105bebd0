package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"amberline/internal/types"
)

// ThrottleSubmissions limits anonymous submissions (sightings, leads) per
// client IP. Limiter errors other than a rate-limit rejection let the request
// through.
func (s *Server) ThrottleSubmissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.SubmissionLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		err := s.SubmissionLimiter.Allow(r.Context(), "ip:"+ip)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeRateLimit {
			s.Logger.Error("submission limiter error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		if retry, ok := appErr.Details["retry_after_seconds"]; ok {
			switch v := retry.(type) {
			case int:
				w.Header().Set("Retry-After", strconv.Itoa(v))
			case int64:
				w.Header().Set("Retry-After", strconv.FormatInt(v, 10))
			}
		}
		s.Logger.Warn("submission throttled",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
		)
		Error(w, r, appErr)
	})
}
