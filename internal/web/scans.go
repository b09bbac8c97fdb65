package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/scanner"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// ScanRunner is the slice of the scan pipeline the API needs.
type ScanRunner interface {
	Scan(ctx context.Context, asset *store.ProtectedAsset, opts scanner.ScanOptions) (*scanner.ScanResult, error)
}

// ScansHandler triggers scan runs and reports their status.
type ScansHandler struct {
	runner ScanRunner
	assets store.AssetStore
	jobs   *JobManager
	log    *logging.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(runner ScanRunner, assets store.AssetStore, jobs *JobManager, log *logging.Logger) *ScansHandler {
	return &ScansHandler{
		runner: runner,
		assets: assets,
		jobs:   jobs,
		log:    log,
	}
}

type startScanRequest struct {
	AssetID       string `json:"asset_id"`
	MaxCandidates int    `json:"max_candidates"`
	MaxExpansions int    `json:"max_expansions"`
	SkipCache     bool   `json:"skip_cache"`
}

type scanJobPayload struct {
	ID          string             `json:"id"`
	AssetID     string             `json:"asset_id"`
	Status      JobStatus          `json:"status"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Result      *scanResultPayload `json:"result,omitempty"`
}

type scanResultPayload struct {
	AssetID               string              `json:"asset_id"`
	CandidateGroupID      string              `json:"candidate_group_id"`
	PersonDiscoveryUsed   bool                `json:"person_discovery_used"`
	ProvidersUsed         []string            `json:"providers_used,omitempty"`
	TotalFound            int                 `json:"total_found"`
	SkippedBelowThreshold int                 `json:"skipped_below_threshold"`
	Candidates            []candidatePayload  `json:"candidates,omitempty"`
	DirectMatches         []exactMatchPayload `json:"direct_matches,omitempty"`
	RecordsCreated        int                 `json:"records_created"`
	RecordsUpdated        int                 `json:"records_updated"`
	RecordsFailed         int                 `json:"records_failed"`
	AlertsSent            int                 `json:"alerts_sent"`
	AlertsFailed          int                 `json:"alerts_failed"`
	Durations             durationsPayload    `json:"durations"`
	Warnings              []string            `json:"warnings,omitempty"`
}

type candidatePayload struct {
	discovery.Candidate
	IdentitySimilarity float64             `json:"identity_similarity,omitempty"`
	VerificationEngine string              `json:"verification_engine,omitempty"`
	AutoAlert          bool                `json:"auto_alert"`
	Matches            []exactMatchPayload `json:"matches,omitempty"`
}

type exactMatchPayload struct {
	ImageURL   string  `json:"image_url,omitempty"`
	SourceURL  string  `json:"source_url"`
	Domain     string  `json:"domain,omitempty"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence,omitempty"`
}

type durationsPayload struct {
	DiscoveryMs    int64 `json:"discovery_ms"`
	ExpansionMs    int64 `json:"expansion_ms"`
	DirectSearchMs int64 `json:"direct_search_ms"`
	VerificationMs int64 `json:"verification_ms"`
	PersistenceMs  int64 `json:"persistence_ms"`
}

func newExactMatchPayloads(matches []tineye.Match) []exactMatchPayload {
	if len(matches) == 0 {
		return nil
	}
	payloads := make([]exactMatchPayload, len(matches))
	for i, m := range matches {
		payloads[i] = exactMatchPayload{
			ImageURL:   m.ImageURL,
			SourceURL:  m.SourceURL,
			Domain:     m.Domain,
			Score:      m.Score,
			Confidence: m.Confidence,
		}
	}
	return payloads
}

func newScanResultPayload(result *scanner.ScanResult) *scanResultPayload {
	if result == nil {
		return nil
	}

	payload := &scanResultPayload{
		AssetID:               result.AssetID,
		CandidateGroupID:      result.CandidateGroupID,
		PersonDiscoveryUsed:   result.PersonDiscoveryUsed,
		ProvidersUsed:         result.ProvidersUsed,
		TotalFound:            result.TotalFound,
		SkippedBelowThreshold: result.SkippedBelowThreshold,
		DirectMatches:         newExactMatchPayloads(result.DirectMatches),
		RecordsCreated:        result.RecordsCreated,
		RecordsUpdated:        result.RecordsUpdated,
		RecordsFailed:         result.RecordsFailed,
		AlertsSent:            result.AlertsSent,
		AlertsFailed:          result.AlertsFailed,
		Durations: durationsPayload{
			DiscoveryMs:    result.Durations.DiscoveryMs,
			ExpansionMs:    result.Durations.ExpansionMs,
			DirectSearchMs: result.Durations.DirectSearchMs,
			VerificationMs: result.Durations.VerificationMs,
			PersistenceMs:  result.Durations.PersistenceMs,
		},
		Warnings: result.Warnings,
	}

	for _, c := range result.Candidates {
		payload.Candidates = append(payload.Candidates, candidatePayload{
			Candidate:          c.Candidate,
			IdentitySimilarity: c.IdentitySimilarity,
			VerificationEngine: c.VerificationEngine,
			AutoAlert:          c.AutoAlert,
			Matches:            newExactMatchPayloads(c.Matches),
		})
	}

	return payload
}

// Start kicks off a scan in the background and returns the job id.
func (h *ScansHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.AssetID == "" {
		respondError(w, http.StatusBadRequest, "asset_id is required")
		return
	}

	asset, err := h.assets.GetAsset(r.Context(), req.AssetID)
	if err != nil {
		h.log.Error("failed to load asset for scan", "asset", sanitizeForLog(req.AssetID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load asset")
		return
	}
	if asset == nil {
		respondError(w, http.StatusNotFound, "asset not found")
		return
	}
	if asset.Status != store.AssetStatusActive {
		respondError(w, http.StatusConflict, "asset is paused")
		return
	}

	jobID := uuid.New().String()
	job := h.jobs.CreateJob(jobID, asset.ID)

	opts := scanner.ScanOptions{
		MaxCandidates: req.MaxCandidates,
		MaxExpansions: req.MaxExpansions,
		SkipCache:     req.SkipCache,
	}
	go h.runScanJob(job, asset, opts)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"asset_id": asset.ID,
		"status":   string(JobStatusPending),
	})
}

// runScanJob runs the scan in the background.
func (h *ScansHandler) runScanJob(job *ScanJob, asset *store.ProtectedAsset, opts scanner.ScanOptions) {
	// The request context dies when the handler returns, so the job gets
	// its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.setRunning(cancel)

	result, err := h.runner.Scan(ctx, asset, opts)
	if err != nil {
		h.log.Error("scan job failed", "job", job.ID, "asset", job.AssetID, "error", err)
		job.fail(err.Error())
		return
	}
	job.complete(result)
}

// Status returns the status of a scan job.
func (h *ScansHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobs.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job.Snapshot())
}

// List returns all known scan jobs, newest first.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.ListJobs()
	payloads := make([]scanJobPayload, 0, len(jobs))
	for _, job := range jobs {
		payloads = append(payloads, job.Snapshot())
	}
	respondJSON(w, http.StatusOK, payloads)
}

// Cancel cancels a scan job.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobs.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
