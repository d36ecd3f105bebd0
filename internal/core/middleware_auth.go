package core

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"amberline/internal/types"
)

const (
	staffKeyHeader  = "X-API-Key"
	staffUserHeader = "X-Staff-User"

	// defaultStaffActor is stamped as reported_by when the caller holds the
	// staff key but does not name themselves.
	defaultStaffActor = "staff"
)

// RequireStaff authenticates staff-only routes. The X-API-Key header is
// compared with the configured bcrypt hash; X-Staff-User names the actor
// recorded on the records the request creates.
func (s *Server) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(staffKeyHeader))
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "X-API-Key header is required")
			return
		}

		if len(s.StaffKeyHash) == 0 || bcrypt.CompareHashAndPassword(s.StaffKeyHash, []byte(key)) != nil {
			s.Logger.Warn("staff authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", clientIP(r)),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid API key")
			return
		}

		actorID := strings.TrimSpace(r.Header.Get(staffUserHeader))
		if actorID == "" {
			actorID = defaultStaffActor
		}
		ctx := types.WithActor(r.Context(), types.Actor{ID: actorID, Type: types.ActorTypeStaff})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFrom returns the authenticated actor, or an anonymous public actor.
func ActorFrom(r *http.Request) types.Actor {
	if actor, ok := types.GetActor(r.Context()); ok {
		return actor
	}
	return types.Actor{Type: types.ActorTypePublic}
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{Error: ErrorDetail{
		Code:      string(code),
		Message:   message,
		RequestID: types.GetRequestID(r.Context()),
	}})
}
