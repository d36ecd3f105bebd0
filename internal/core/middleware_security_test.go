package core

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("missing security headers: %v", rec.Header())
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://amberline.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
	req.Header.Set("Origin", "https://amberline.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "https://amberline.example" {
		t.Errorf("origin not echoed: %v", rec.Header())
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Error("expected Vary: Origin for explicit origins")
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://amberline.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := NewCORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/subscriptions/email", nil))

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight: status %d, handler called %v", rec.Code, called)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"forwarded first entry", "203.0.113.9, 10.0.0.1", "10.0.0.2:5000", "203.0.113.9"},
		{"remote addr host", "", "198.51.100.4:443", "198.51.100.4"},
		{"remote addr without port", "", "198.51.100.4", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeJSON(t *testing.T) {
	if got := escapeJSON("a\"b\\c\n"); got != `a\"b\\c\n` {
		t.Errorf("escapeJSON = %q", got)
	}
}
