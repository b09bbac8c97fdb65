// Package scanner runs the reuse-detection pipeline for one protected
// asset: discovery fan-out, candidate dedup, exact-match expansion, the
// confidence gate with secondary verification, and transactional
// persistence with owner alerts.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-sentry/internal/alert"
	"github.com/kozaktomas/photo-sentry/internal/analysis"
	"github.com/kozaktomas/photo-sentry/internal/config"
	"github.com/kozaktomas/photo-sentry/internal/deepface"
	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/fingerprint"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// ExactSearcher is the slice of the exact-match backend the scanner uses.
type ExactSearcher interface {
	Name() string
	IsConfigured() bool
	SearchByURL(ctx context.Context, imageURL string, opts tineye.SearchOptions) (*tineye.SearchResult, error)
	SearchByUpload(ctx context.Context, imageData []byte, filename string, opts tineye.SearchOptions) (*tineye.SearchResult, error)
}

// FaceVerifier produces the embeddings used for vector refresh and for the
// secondary verification checks.
type FaceVerifier interface {
	ExtractEmbedding(ctx context.Context, imageData []byte) (*deepface.FaceEmbedding, error)
	GenerateContentEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// Scanner drives scan runs. Construct it with New.
type Scanner struct {
	engines  []discovery.Engine
	cache    *discovery.Cache
	exact    ExactSearcher
	faces    FaceVerifier
	fetcher  ImageFetcher
	assets   store.AssetStore
	matches  store.MatchStore
	alerter  *alert.Alerter
	analysis analysis.Provider
	cfg      *config.Config
	log      *logging.Logger
}

// Deps carries everything a Scanner needs. Engines may be empty and Cache,
// Exact and Analysis may be nil; the pipeline degrades instead of failing.
// The remaining fields are required.
type Deps struct {
	Engines  []discovery.Engine
	Cache    *discovery.Cache
	Exact    ExactSearcher
	Faces    FaceVerifier
	Fetcher  ImageFetcher
	Assets   store.AssetStore
	Matches  store.MatchStore
	Alerter  *alert.Alerter
	Analysis analysis.Provider
	Config   *config.Config
	Log      *logging.Logger
}

// New creates a scanner
func New(deps Deps) *Scanner {
	return &Scanner{
		engines:  deps.Engines,
		cache:    deps.Cache,
		exact:    deps.Exact,
		faces:    deps.Faces,
		fetcher:  deps.Fetcher,
		assets:   deps.Assets,
		matches:  deps.Matches,
		alerter:  deps.Alerter,
		analysis: deps.Analysis,
		cfg:      deps.Config,
		log:      deps.Log,
	}
}

// Scan runs the full pipeline for one stored asset. It returns an error only
// when the input is unusable; everything past validation degrades into
// warnings and tallies on the result.
func (s *Scanner) Scan(ctx context.Context, asset *store.ProtectedAsset, opts ScanOptions) (*ScanResult, error) {
	if asset == nil || asset.ID == "" {
		return nil, fmt.Errorf("a stored protected asset is required")
	}

	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = s.cfg.Scan.MaxCandidates
	}
	if opts.MaxExpansions <= 0 {
		opts.MaxExpansions = s.cfg.Scan.MaxExpansions
	}

	result := &ScanResult{
		AssetID:          asset.ID,
		CandidateGroupID: uuid.NewString(),
	}

	s.log.Info("scan started",
		"asset", asset.ID,
		"group", result.CandidateGroupID,
		"max_candidates", opts.MaxCandidates,
		"max_expansions", opts.MaxExpansions,
	)

	imageData := s.fetchProbe(ctx, asset, result)
	s.refreshVectors(ctx, asset, imageData)

	start := time.Now()
	disc := s.discover(ctx, discovery.Asset{
		ID:        asset.ID,
		ImageURL:  asset.ImageURL,
		ImageData: imageData,
	}, opts)
	result.Durations.DiscoveryMs = time.Since(start).Milliseconds()
	result.PersonDiscoveryUsed = disc.used
	result.ProvidersUsed = disc.providers
	result.TotalFound = disc.totalFound
	result.Warnings = append(result.Warnings, disc.warnings...)

	// The direct-asset search does not depend on discovery, so it runs
	// while the candidates are being expanded.
	directCh := make(chan directResult, 1)
	go func() {
		dStart := time.Now()
		matches, warning := s.searchDirect(ctx, asset, imageData, opts.MaxCandidates)
		directCh <- directResult{
			matches:    matches,
			warning:    warning,
			durationMs: time.Since(dStart).Milliseconds(),
		}
	}()

	start = time.Now()
	expanded := s.expand(ctx, disc.candidates, opts.MaxExpansions)
	result.Durations.ExpansionMs = time.Since(start).Milliseconds()

	direct := <-directCh
	result.Durations.DirectSearchMs = direct.durationMs
	result.DirectMatches = direct.matches
	if direct.warning != "" {
		result.Warnings = append(result.Warnings, direct.warning)
	}

	start = time.Now()
	kept, skipped := s.gate(ctx, asset, expanded)
	result.Durations.VerificationMs = time.Since(start).Milliseconds()
	result.Candidates = kept
	result.SkippedBelowThreshold = skipped

	start = time.Now()
	stats, jobs, err := s.persist(ctx, asset, result.CandidateGroupID, kept, direct.matches)
	result.Durations.PersistenceMs = time.Since(start).Milliseconds()
	result.RecordsCreated = stats.created
	result.RecordsUpdated = stats.updated
	result.RecordsFailed = stats.failed
	if err != nil {
		s.log.Error("scan persistence failed", "asset", asset.ID, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to persist scan results: %s", err.Error()))
	}

	result.AlertsSent, result.AlertsFailed = s.dispatchAlerts(ctx, asset, jobs)

	s.log.Info("scan finished",
		"asset", asset.ID,
		"group", result.CandidateGroupID,
		"candidates", len(result.Candidates),
		"direct", len(result.DirectMatches),
		"created", result.RecordsCreated,
		"updated", result.RecordsUpdated,
		"failed", result.RecordsFailed,
		"alerts", result.AlertsSent,
		"warnings", len(result.Warnings),
	)

	return result, nil
}

// fetchProbe retrieves the asset's image bytes. The scan degrades rather
// than fails when the image is unreachable.
func (s *Scanner) fetchProbe(ctx context.Context, asset *store.ProtectedAsset, result *ScanResult) []byte {
	if asset.ImageURL == "" {
		return nil
	}

	data, err := s.fetcher.Fetch(ctx, asset.ImageURL)
	if err != nil {
		s.log.Warn("failed to fetch asset image", "asset", asset.ID, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to fetch asset image: %s", err.Error()))
		return nil
	}
	return data
}

// refreshVectors recomputes the asset's embeddings and fingerprint from the
// freshly fetched probe and stores them. The stored values survive any
// failure here; the scan continues with what it has.
func (s *Scanner) refreshVectors(ctx context.Context, asset *store.ProtectedAsset, imageData []byte) {
	if s.faces == nil || len(imageData) == 0 {
		return
	}

	var identityVec []float32
	emb, err := s.faces.ExtractEmbedding(ctx, imageData)
	switch {
	case err != nil:
		s.log.Warn("face embedding refresh failed", "asset", asset.ID, "error", err)
	case emb != nil && len(emb.Embedding) > 0:
		identityVec = emb.Embedding
	}

	contentVec, err := s.faces.GenerateContentEmbedding(ctx, imageData)
	if err != nil {
		s.log.Warn("content embedding refresh failed", "asset", asset.ID, "error", err)
		contentVec = nil
	}

	fp, err := fingerprint.Compute(imageData)
	if err != nil {
		s.log.Warn("fingerprint refresh failed", "asset", asset.ID, "error", err)
		fp = ""
	}

	if identityVec == nil && contentVec == nil && fp == "" {
		return
	}

	if err := s.assets.UpdateAssetVectors(ctx, asset.ID, identityVec, contentVec, fp); err != nil {
		s.log.Warn("failed to store refreshed vectors", "asset", asset.ID, "error", err)
		return
	}

	if identityVec != nil {
		asset.IdentityVector = identityVec
	}
	if contentVec != nil {
		asset.ContentVector = contentVec
	}
	if fp != "" {
		asset.ContentFingerprint = fp
	}
}
