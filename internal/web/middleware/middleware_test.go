package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://kiosk.example.com"})(okHandler())

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"localhost with port", http.MethodGet, "http://localhost:5173", "http://localhost:5173", http.StatusOK},
		{"loopback", http.MethodGet, "http://127.0.0.1:3000", "http://127.0.0.1:3000", http.StatusOK},
		{"configured origin", http.MethodGet, "https://kiosk.example.com", "https://kiosk.example.com", http.StatusOK},
		{"unknown origin", http.MethodGet, "https://evil.example.com", "", http.StatusOK},
		{"localhost lookalike", http.MethodGet, "http://localhost.evil.com", "", http.StatusOK},
		{"no origin", http.MethodGet, "", "", http.StatusOK},
		{"preflight", http.MethodOptions, "http://localhost:5173", "http://localhost:5173", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/register", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Access-Control-Allow-Origin '%s', got '%s'", tt.wantOrigin, got)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 2)(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/register", nil))
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected status %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestWebSocketOriginPatterns(t *testing.T) {
	patterns := WebSocketOriginPatterns([]string{"https://kiosk.example.com"})

	found := false
	for _, p := range patterns {
		if p == "kiosk.example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected kiosk.example.com in %v", patterns)
	}
	if patterns[0] != "localhost:*" {
		t.Errorf("expected localhost pattern first, got %v", patterns)
	}
}
