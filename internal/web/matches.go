package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// MatchesHandler exposes persisted match records.
type MatchesHandler struct {
	matches store.MatchStore
	log     *logging.Logger
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(matches store.MatchStore, log *logging.Logger) *MatchesHandler {
	return &MatchesHandler{
		matches: matches,
		log:     log,
	}
}

type matchPayload struct {
	ID                 string    `json:"id"`
	AssetID            string    `json:"asset_id"`
	SourceURL          string    `json:"source_url"`
	MatchType          string    `json:"match_type"`
	Similarity         float64   `json:"similarity"`
	DiscoveryEngine    string    `json:"discovery_engine"`
	VerificationEngine string    `json:"verification_engine,omitempty"`
	ParentCandidateID  string    `json:"parent_candidate_id,omitempty"`
	CandidateGroupID   string    `json:"candidate_group_id"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
}

func newMatchPayload(m *store.MatchRecord) matchPayload {
	return matchPayload{
		ID:                 m.ID,
		AssetID:            m.ProtectedAssetID,
		SourceURL:          m.SourceURL,
		MatchType:          m.MatchType,
		Similarity:         m.Similarity,
		DiscoveryEngine:    m.DiscoveryEngine,
		VerificationEngine: m.VerificationEngine,
		ParentCandidateID:  m.ParentCandidateID,
		CandidateGroupID:   m.CandidateGroupID,
		Status:             m.Status,
		CreatedAt:          m.CreatedAt,
		LastSeenAt:         m.LastSeenAt,
	}
}

func newMatchPayloads(records []store.MatchRecord) []matchPayload {
	payloads := make([]matchPayload, 0, len(records))
	for i := range records {
		payloads = append(payloads, newMatchPayload(&records[i]))
	}
	return payloads
}

// Get returns one match record.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.matches.GetMatch(r.Context(), id)
	if err != nil {
		h.log.Error("failed to load match", "match", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "match not found")
		return
	}

	respondJSON(w, http.StatusOK, newMatchPayload(record))
}

// List returns the match records written by one scan run.
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group")
	if groupID == "" {
		respondError(w, http.StatusBadRequest, "group query parameter is required")
		return
	}

	records, err := h.matches.ListMatchesByGroup(r.Context(), groupID)
	if err != nil {
		h.log.Error("failed to list matches", "group", sanitizeForLog(groupID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	respondJSON(w, http.StatusOK, newMatchPayloads(records))
}
