package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSAllowList(t *testing.T) {
	app, _, _ := setupTestApp(t)

	tests := []struct {
		name     string
		origin   string
		wantEcho bool
	}{
		{"allowed_app_origin", testAppOrigin, true},
		{"allowed_localhost", "http://localhost:3000", true},
		{"evil_origin", "https://evil.example", false},
		{"scheme_mismatch", "https://localhost:3000", false},
		{"prefix_attack", testAppOrigin + ".evil.example", false},
		{"no_origin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/auth/me", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := doRequest(app, req)

			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantEcho {
				if got != tt.origin {
					t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
				}
				if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Error("Allow-Credentials missing for allowed origin")
				}
			} else if got != "" {
				t.Errorf("Allow-Origin = %q for disallowed origin %q", got, tt.origin)
			}

			if w.Header().Get("Vary") != "Origin" {
				t.Error("Vary: Origin missing")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	app, provider, _ := setupTestApp(t)

	// Preflight against the callback: it must answer 204 without running any
	// of the callback's validation or exchange logic.
	req := httptest.NewRequest("OPTIONS", "/auth/callback", nil)
	req.Header.Set("Origin", testAppOrigin)
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := doRequest(app, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight has body: %s", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != testAppOrigin {
		t.Errorf("Allow-Origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Allow-Methods missing on preflight")
	}
	if provider.exchangeCode != "" {
		t.Error("preflight executed business logic")
	}
}

func TestCORSPreflightDisallowedOrigin(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest("OPTIONS", "/api/units", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := doRequest(app, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for evil origin", got)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com", "http://localhost:3000/"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://app.example.com/", true},
		{"http://localhost:3000", true},
		{"http://app.example.com", false},
		{"https://app.example.com:8443", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := originAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
