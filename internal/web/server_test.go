package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-sentry/internal/logging"
)

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/health")

	assertStatusCode(t, rec, http.StatusOK)
	var payload healthPayload
	parseJSONResponse(t, rec, &payload)
	if payload.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", payload.Status)
	}
	if payload.EmbeddingService == nil {
		t.Fatal("expected embedding service health in the payload")
	}
	if payload.EmbeddingService.Status != "healthy" {
		t.Errorf("expected embedding status 'healthy', got '%s'", payload.EmbeddingService.Status)
	}
	if !payload.EmbeddingService.FaceModelLoaded || !payload.EmbeddingService.CLIPModelLoaded {
		t.Errorf("expected both models loaded, got face=%v clip=%v",
			payload.EmbeddingService.FaceModelLoaded, payload.EmbeddingService.CLIPModelLoaded)
	}
}

func TestHealthEndpoint_EmbedderDown(t *testing.T) {
	ts := newTestServer(t)
	ts.health.err = fmt.Errorf("connection refused")

	rec := ts.get(t, "/api/v1/health")

	// The API itself is up even when the embedding service is not.
	assertStatusCode(t, rec, http.StatusOK)
	var payload healthPayload
	parseJSONResponse(t, rec, &payload)
	if payload.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", payload.Status)
	}
	if payload.EmbeddingService == nil {
		t.Fatal("expected embedding service health in the payload")
	}
	if payload.EmbeddingService.Status != "unreachable" {
		t.Errorf("expected embedding status 'unreachable', got '%s'", payload.EmbeddingService.Status)
	}
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.Web.APIKey = "secret"
	// Routes capture the key at construction time, so rebuild the server.
	ts.server = NewServer(ts.cfg, "127.0.0.1", 0, Deps{
		Runner:  ts.runner,
		Store:   ts.assets,
		Matches: ts.matches,
		Alerts:  ts.alerts,
		Log:     logging.Nop(),
	})

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "missing credentials",
			path:       "/api/v1/assets",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong api key header",
			path:       "/api/v1/assets",
			headers:    map[string]string{"X-API-Key": "nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid api key header",
			path:       "/api/v1/assets",
			headers:    map[string]string{"X-API-Key": "secret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer token",
			path:       "/api/v1/assets",
			headers:    map[string]string{"Authorization": "Bearer secret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong bearer token",
			path:       "/api/v1/assets",
			headers:    map[string]string{"Authorization": "Bearer nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "health stays open",
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			ts.server.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d\nBody: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAPIKey_DisabledAllowsAll(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/assets")

	assertStatusCode(t, rec, http.StatusOK)
}
