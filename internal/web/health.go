package web

import (
	"context"
	"net/http"

	"github.com/kozaktomas/photo-sentry/internal/deepface"
)

// HealthChecker probes the embedding service.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (*deepface.Health, error)
}

// HealthHandler reports API liveness and embedding-service readiness.
type HealthHandler struct {
	embedder HealthChecker
}

// NewHealthHandler creates a new health handler. A nil embedder skips the
// embedding-service probe.
func NewHealthHandler(embedder HealthChecker) *HealthHandler {
	return &HealthHandler{embedder: embedder}
}

type embeddingHealthPayload struct {
	Status     string `json:"status"`
	FaceLoaded bool   `json:"face_model_loaded"`
	CLIPLoaded bool   `json:"clip_model_loaded"`
}

type healthPayload struct {
	Status           string                  `json:"status"`
	EmbeddingService *embeddingHealthPayload `json:"embedding_service,omitempty"`
}

// Get handles the health check endpoint. An unreachable embedding service
// degrades the payload, never the status code; the API itself is up.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	payload := healthPayload{Status: "ok"}

	if h.embedder != nil {
		health, err := h.embedder.CheckHealth(r.Context())
		if err != nil {
			payload.EmbeddingService = &embeddingHealthPayload{Status: "unreachable"}
		} else {
			payload.EmbeddingService = &embeddingHealthPayload{
				Status:     health.Status,
				FaceLoaded: health.FaceLoaded,
				CLIPLoaded: health.CLIPLoaded,
			}
		}
	}

	respondJSON(w, http.StatusOK, payload)
}
