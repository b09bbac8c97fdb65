// Package assets registers photos for reuse monitoring: it fingerprints the
// upload, extracts its identity and content vectors, flags near-duplicate
// already-protected photos and persists the asset.
package assets

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-sentry/internal/constants"
	"github.com/kozaktomas/photo-sentry/internal/deepface"
	"github.com/kozaktomas/photo-sentry/internal/fingerprint"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// nearDuplicateProbe is how many index neighbors the intake check inspects.
const nearDuplicateProbe = 5

// Sentinel errors callers can test with errors.Is.
var (
	ErrValidation = errors.New("invalid request")
	ErrBadImage   = errors.New("unusable image")
	ErrNotFound   = errors.New("asset not found")
)

// EmbeddingExtractor produces identity and content vectors for a photo.
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, imageData []byte) (*deepface.FaceEmbedding, error)
	GenerateContentEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// ImageFetcher retrieves the photo bytes when only a URL is given.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ProtectRequest describes one photo to register.
type ProtectRequest struct {
	OwnerID   string
	Name      string
	ImageURL  string
	ImageData []byte // optional, fetched from ImageURL when empty
}

// NearDuplicate is an already-protected asset whose content vector sits close
// to the upload.
type NearDuplicate struct {
	AssetID  string
	Distance float64
}

// ProtectResult reports what intake did with one upload.
type ProtectResult struct {
	Asset          *store.ProtectedAsset
	NearDuplicates []NearDuplicate
	FaceFound      bool
	Warnings       []string
}

// Service is the asset intake service. Construct it with New.
type Service struct {
	assets  store.AssetStore
	index   *store.AssetIndex
	embed   EmbeddingExtractor
	fetcher ImageFetcher
	log     *logging.Logger
}

// New creates an intake service
func New(assets store.AssetStore, index *store.AssetIndex, embed EmbeddingExtractor, fetcher ImageFetcher, log *logging.Logger) *Service {
	return &Service{
		assets:  assets,
		index:   index,
		embed:   embed,
		fetcher: fetcher,
		log:     log,
	}
}

// Protect registers one photo. An unusable input (missing fields, unfetchable
// or undecodable image) is an error; a degraded embedding service is not,
// the asset is stored without vectors and a scan run refreshes them later.
func (s *Service) Protect(ctx context.Context, req *ProtectRequest) (*ProtectResult, error) {
	if req == nil || req.OwnerID == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: owner id and name are required", ErrValidation)
	}
	if len(req.ImageData) == 0 && req.ImageURL == "" {
		return nil, fmt.Errorf("%w: an image or an image URL is required", ErrValidation)
	}

	imageData := req.ImageData
	if len(imageData) == 0 {
		data, err := s.fetcher.Fetch(ctx, req.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch image: %v", ErrBadImage, err)
		}
		imageData = data
	}

	fp, err := fingerprint.Compute(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fingerprint image: %v", ErrBadImage, err)
	}

	// Large uploads are downscaled before they travel to the embedding
	// service.
	if resized, err := fingerprint.ResizeImage(imageData, constants.MaxImageSize); err == nil {
		imageData = resized
	}

	result := &ProtectResult{}

	var (
		faceEmb    *deepface.FaceEmbedding
		contentVec []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := s.embed.ExtractEmbedding(gctx, imageData)
		if err != nil {
			return fmt.Errorf("identity embedding: %w", err)
		}
		faceEmb = emb
		return nil
	})
	g.Go(func() error {
		vec, err := s.embed.GenerateContentEmbedding(gctx, imageData)
		if err != nil {
			return fmt.Errorf("content embedding: %w", err)
		}
		contentVec = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("embedding extraction degraded", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("embedding service unavailable: %s", err.Error()))
	}

	var identityVec []float32
	switch {
	case faceEmb != nil && len(faceEmb.Embedding) > 0:
		identityVec = faceEmb.Embedding
		result.FaceFound = true
	case faceEmb != nil:
		result.Warnings = append(result.Warnings, "no face detected in the image")
	}

	result.NearDuplicates = s.findNearDuplicates(contentVec)

	asset := &store.ProtectedAsset{
		OwnerID:            req.OwnerID,
		Name:               req.Name,
		ImageURL:           req.ImageURL,
		IdentityVector:     identityVec,
		ContentVector:      contentVec,
		ContentFingerprint: fp,
		Status:             store.AssetStatusActive,
	}
	if err := s.assets.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to store asset: %w", err)
	}

	s.index.Add(asset.ID, contentVec)
	result.Asset = asset

	s.log.Info("asset protected",
		"asset", asset.ID,
		"owner", asset.OwnerID,
		"face", result.FaceFound,
		"near_duplicates", len(result.NearDuplicates),
	)

	return result, nil
}

// findNearDuplicates reports already-protected assets whose content vector
// sits within the near-duplicate distance of the upload.
func (s *Service) findNearDuplicates(contentVec []float32) []NearDuplicate {
	if s.index == nil || len(contentVec) == 0 || s.index.IsEmpty() {
		return nil
	}

	ids, distances, err := s.index.Search(contentVec, nearDuplicateProbe)
	if err != nil {
		s.log.Warn("near-duplicate lookup failed", "error", err)
		return nil
	}

	var dups []NearDuplicate
	for i, id := range ids {
		if distances[i] > constants.NearDuplicateDistanceThreshold {
			continue
		}
		dups = append(dups, NearDuplicate{AssetID: id, Distance: distances[i]})
	}
	return dups
}

// Similar returns the indexed assets closest to one asset's content vector,
// nearest first, excluding the asset itself.
func (s *Service) Similar(ctx context.Context, assetID string, k int) ([]NearDuplicate, error) {
	if k <= 0 {
		k = nearDuplicateProbe
	}

	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	if len(asset.ContentVector) == 0 {
		return nil, fmt.Errorf("%w: asset %s has no content vector", ErrValidation, assetID)
	}
	if s.index == nil || s.index.IsEmpty() {
		return nil, nil
	}

	ids, distances, err := s.index.Search(asset.ContentVector, k+1)
	if err != nil {
		return nil, fmt.Errorf("failed to search asset index: %w", err)
	}

	similar := make([]NearDuplicate, 0, k)
	for i, id := range ids {
		if id == assetID {
			continue
		}
		if len(similar) == k {
			break
		}
		similar = append(similar, NearDuplicate{AssetID: id, Distance: distances[i]})
	}
	return similar, nil
}

// BuildIndex loads the persisted asset index when a path is configured and
// the file exists, and rebuilds it from the store otherwise.
func (s *Service) BuildIndex(ctx context.Context, path string) error {
	assets, err := s.assets.ListAssets(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list assets for the index: %w", err)
	}

	if path != "" {
		if err := s.index.Load(path); err != nil {
			s.log.Warn("failed to load asset index, rebuilding", "path", path, "error", err)
		} else if !s.index.IsEmpty() {
			s.index.RestoreIDs(assets)
			s.log.Info("asset index loaded", "path", path, "assets", s.index.Count())
			return nil
		}
	}

	s.index.BuildFromAssets(assets)
	s.log.Info("asset index built", "assets", s.index.Count())
	return nil
}
