package scanner

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// expansionMatchLimit caps how many copies one expanded candidate image may
// bring back.
const expansionMatchLimit = 10

// directResult is what the parallel direct-asset search hands back.
type directResult struct {
	matches    []tineye.Match
	warning    string
	durationMs int64
}

// expand runs the first maxExpansions candidates that carry an image
// reference through the exact-match backend, in dedup order. Candidates
// without an image, or beyond the budget, pass through with an empty match
// list. A failed expansion is logged and never stops the loop.
func (s *Scanner) expand(ctx context.Context, candidates []discovery.Candidate, maxExpansions int) []ExpandedCandidate {
	expanded := make([]ExpandedCandidate, 0, len(candidates))
	expansions := 0

	for i, c := range candidates {
		ec := ExpandedCandidate{Candidate: c}
		if c.Kind == discovery.KindIdentity {
			ec.IdentitySimilarity = c.Score / 100
		}

		if c.ImageURL == "" || expansions >= maxExpansions || !s.exactConfigured() {
			expanded = append(expanded, ec)
			continue
		}

		expansions++
		res, err := s.exact.SearchByURL(ctx, c.ImageURL, tineye.SearchOptions{Limit: expansionMatchLimit})
		if err != nil {
			s.log.Warn("candidate expansion failed",
				"candidate", i+1,
				"source", c.SourceURL,
				"error", err,
			)
			expanded = append(expanded, ec)
			continue
		}

		ec.Matches = res.Matches
		expanded = append(expanded, ec)
	}

	return expanded
}

// searchDirect looks for copies of the asset image itself. It prefers
// uploading the probe bytes and falls back to searching by URL. An
// unconfigured backend skips the search silently; a failed one returns a
// warning.
func (s *Scanner) searchDirect(ctx context.Context, asset *store.ProtectedAsset, imageData []byte, limit int) ([]tineye.Match, string) {
	if !s.exactConfigured() {
		return nil, ""
	}

	var (
		res *tineye.SearchResult
		err error
	)
	switch {
	case len(imageData) > 0:
		res, err = s.exact.SearchByUpload(ctx, imageData, asset.ID+".jpg", tineye.SearchOptions{Limit: limit})
	case asset.ImageURL != "":
		res, err = s.exact.SearchByURL(ctx, asset.ImageURL, tineye.SearchOptions{Limit: limit})
	default:
		return nil, ""
	}
	if err != nil {
		s.log.Warn("direct exact-match search failed", "asset", asset.ID, "error", err)
		return nil, fmt.Sprintf("exact-match search failed: %s", err.Error())
	}

	return res.Matches, ""
}

func (s *Scanner) exactConfigured() bool {
	return s.exact != nil && s.exact.IsConfigured()
}
