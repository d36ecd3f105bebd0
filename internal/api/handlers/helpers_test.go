package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"amberline/internal/core"
	"amberline/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStaff stands in for core.Server.RequireStaff: requests carrying
// X-API-Key "ok" pass as staff member "officer-1".
func fakeStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "ok" {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API key", nil))
			return
		}
		ctx := types.WithActor(r.Context(), types.Actor{ID: "officer-1", Type: types.ActorTypeStaff})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func passthrough(next http.Handler) http.Handler { return next }

type recordingAlerts struct {
	mu        sync.Mutex
	cases     []string
	sightings [][2]string
	err       error
}

func (a *recordingAlerts) EnqueueCaseAlert(_ context.Context, caseID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cases = append(a.cases, caseID)
	return a.err
}

func (a *recordingAlerts) EnqueueSightingAlert(_ context.Context, caseID, sightingID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sightings = append(a.sightings, [2]string{caseID, sightingID})
	return a.err
}

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Page  *core.PageInfo    `json:"page"`
	Error *core.ErrorDetail `json:"error"`
}

func do(t *testing.T, router chi.Router, method, path string, body any, staff bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set("X-API-Key", "ok")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
