package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-sentry/internal/assets"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// AssetsHandler manages protected assets.
type AssetsHandler struct {
	service *assets.Service
	store   store.AssetStore
	matches store.MatchStore
	log     *logging.Logger
}

// NewAssetsHandler creates a new assets handler.
func NewAssetsHandler(service *assets.Service, assetStore store.AssetStore, matches store.MatchStore, log *logging.Logger) *AssetsHandler {
	return &AssetsHandler{
		service: service,
		store:   assetStore,
		matches: matches,
		log:     log,
	}
}

type protectRequest struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	// ImageData carries the photo bytes base64-encoded; optional when
	// image_url points at a fetchable image.
	ImageData []byte `json:"image_data,omitempty"`
}

type assetPayload struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	Name              string    `json:"name"`
	ImageURL          string    `json:"image_url,omitempty"`
	Fingerprint       string    `json:"fingerprint,omitempty"`
	HasIdentityVector bool      `json:"has_identity_vector"`
	HasContentVector  bool      `json:"has_content_vector"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newAssetPayload(a *store.ProtectedAsset) assetPayload {
	return assetPayload{
		ID:                a.ID,
		OwnerID:           a.OwnerID,
		Name:              a.Name,
		ImageURL:          a.ImageURL,
		Fingerprint:       a.ContentFingerprint,
		HasIdentityVector: len(a.IdentityVector) > 0,
		HasContentVector:  len(a.ContentVector) > 0,
		Status:            a.Status,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

type nearDuplicatePayload struct {
	AssetID  string  `json:"asset_id"`
	Distance float64 `json:"distance"`
}

func newNearDuplicatePayloads(dups []assets.NearDuplicate) []nearDuplicatePayload {
	if len(dups) == 0 {
		return nil
	}
	payloads := make([]nearDuplicatePayload, len(dups))
	for i, d := range dups {
		payloads[i] = nearDuplicatePayload{AssetID: d.AssetID, Distance: d.Distance}
	}
	return payloads
}

type protectResponse struct {
	Asset          assetPayload           `json:"asset"`
	NearDuplicates []nearDuplicatePayload `json:"near_duplicates,omitempty"`
	FaceFound      bool                   `json:"face_found"`
	Warnings       []string               `json:"warnings,omitempty"`
}

// Create registers a new protected asset.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req protectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.service.Protect(r.Context(), &assets.ProtectRequest{
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
	})
	if err != nil {
		switch {
		case errors.Is(err, assets.ErrValidation):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, assets.ErrBadImage):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.Error("asset registration failed", "owner", sanitizeForLog(req.OwnerID), "error", err)
			respondError(w, http.StatusInternalServerError, "failed to store asset")
		}
		return
	}

	respondJSON(w, http.StatusCreated, protectResponse{
		Asset:          newAssetPayload(result.Asset),
		NearDuplicates: newNearDuplicatePayloads(result.NearDuplicates),
		FaceFound:      result.FaceFound,
		Warnings:       result.Warnings,
	})
}

// List returns protected assets, optionally filtered by status.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != store.AssetStatusActive && status != store.AssetStatusPaused {
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	list, err := h.store.ListAssets(r.Context(), status)
	if err != nil {
		h.log.Error("failed to list assets", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}

	payloads := make([]assetPayload, 0, len(list))
	for i := range list {
		payloads = append(payloads, newAssetPayload(&list[i]))
	}
	respondJSON(w, http.StatusOK, payloads)
}

// Get returns one protected asset.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		h.log.Error("failed to load asset", "asset", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load asset")
		return
	}
	if asset == nil {
		respondError(w, http.StatusNotFound, "asset not found")
		return
	}

	respondJSON(w, http.StatusOK, newAssetPayload(asset))
}

// Similar returns the protected assets closest to one asset's content.
func (h *AssetsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	similar, err := h.service.Similar(r.Context(), id, k)
	if err != nil {
		switch {
		case errors.Is(err, assets.ErrNotFound):
			respondError(w, http.StatusNotFound, "asset not found")
		case errors.Is(err, assets.ErrValidation):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("similar lookup failed", "asset", sanitizeForLog(id), "error", err)
			respondError(w, http.StatusInternalServerError, "failed to search similar assets")
		}
		return
	}

	payloads := newNearDuplicatePayloads(similar)
	if payloads == nil {
		payloads = []nearDuplicatePayload{}
	}
	respondJSON(w, http.StatusOK, payloads)
}

// Matches returns the match records detected for one asset, newest first.
func (h *AssetsHandler) Matches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		h.log.Error("failed to load asset", "asset", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load asset")
		return
	}
	if asset == nil {
		respondError(w, http.StatusNotFound, "asset not found")
		return
	}

	records, err := h.matches.ListMatchesByAsset(r.Context(), id)
	if err != nil {
		h.log.Error("failed to list matches", "asset", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	respondJSON(w, http.StatusOK, newMatchPayloads(records))
}
