package web

import (
	"net/http"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// AlertsHandler exposes owner alerts.
type AlertsHandler struct {
	alerts store.AlertStore
	log    *logging.Logger
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(alerts store.AlertStore, log *logging.Logger) *AlertsHandler {
	return &AlertsHandler{
		alerts: alerts,
		log:    log,
	}
}

type alertPayload struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	MatchRecordID string    `json:"match_record_id"`
	Severity      string    `json:"severity"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	AnalysisInfo  string    `json:"analysis_info,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// List returns all alerts for one owner, newest first.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id query parameter is required")
		return
	}

	alerts, err := h.alerts.ListAlertsByOwner(r.Context(), ownerID)
	if err != nil {
		h.log.Error("failed to list alerts", "owner", sanitizeForLog(ownerID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	payloads := make([]alertPayload, 0, len(alerts))
	for _, a := range alerts {
		payloads = append(payloads, alertPayload{
			ID:            a.ID,
			OwnerID:       a.OwnerID,
			MatchRecordID: a.MatchRecordID,
			Severity:      a.Severity,
			Type:          a.Type,
			Message:       a.Message,
			AnalysisInfo:  a.AnalysisInfo,
			CreatedAt:     a.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, payloads)
}
