package scanner

import (
	"context"

	"github.com/kozaktomas/photo-sentry/internal/config"
	"github.com/kozaktomas/photo-sentry/internal/constants"
	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/identity"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// verificationEngineName is written into match records whose candidate
// passed at least one secondary check.
const verificationEngineName = "deepface"

// gate applies the confidence tiers to the expanded candidates. Identity
// candidates bypass the tiers; they only pick up their alert flag here.
// Visual candidates below their tier floor are dropped and counted, and the
// tier's secondary checks can discard them outright. Everything that
// survives is annotated and kept in order.
func (s *Scanner) gate(ctx context.Context, asset *store.ProtectedAsset, candidates []ExpandedCandidate) ([]ExpandedCandidate, int) {
	kept := make([]ExpandedCandidate, 0, len(candidates))
	skipped := 0

	for i := range candidates {
		ec := candidates[i]
		c := ec.Candidate

		if c.Kind == discovery.KindIdentity {
			ec.AutoAlert = c.Score >= constants.IdentityAlertScoreThreshold
			kept = append(kept, ec)
			continue
		}

		tier, ok := s.cfg.TierFor(string(c.MatchKind))
		if !ok {
			s.log.Warn("no tier policy for match kind", "kind", c.MatchKind, "source", c.SourceURL)
			kept = append(kept, ec)
			continue
		}

		if c.Similarity < tier.Floor {
			skipped++
			s.log.Debug("candidate below tier floor",
				"kind", c.MatchKind,
				"similarity", c.Similarity,
				"floor", tier.Floor,
				"source", c.SourceURL,
			)
			continue
		}

		verified, discard := s.verify(ctx, asset, &ec, tier)
		if discard {
			continue
		}
		if verified {
			ec.VerificationEngine = verificationEngineName
		}
		ec.AutoAlert = tier.Alert == config.TierAlertAuto

		kept = append(kept, ec)
	}

	return kept, skipped
}

// verify runs the tier's secondary checks on one candidate. It reports
// whether any check completed and whether the candidate must be discarded.
// A collaborator failure never discards; only an explicit identity mismatch
// or an explicit below-threshold content similarity does.
func (s *Scanner) verify(ctx context.Context, asset *store.ProtectedAsset, ec *ExpandedCandidate, tier config.TierPolicy) (verified, discard bool) {
	if !tier.IdentityCheck && !tier.ContentCheck {
		return false, false
	}
	if s.faces == nil {
		return false, false
	}

	c := ec.Candidate
	if c.ImageURL == "" {
		return false, false
	}

	imageData, err := s.fetcher.Fetch(ctx, c.ImageURL)
	if err != nil {
		s.log.Warn("failed to fetch candidate image", "source", c.SourceURL, "error", err)
		return false, false
	}

	if tier.IdentityCheck && len(asset.IdentityVector) > 0 {
		emb, err := s.faces.ExtractEmbedding(ctx, imageData)
		switch {
		case err != nil:
			s.log.Warn("identity verification unavailable", "source", c.SourceURL, "error", err)
		case emb == nil || len(emb.Embedding) == 0:
			s.log.Debug("no face in candidate image", "source", c.SourceURL)
		default:
			cmp, err := identity.CompareFaces(asset.IdentityVector, emb.Embedding, 0)
			if err != nil {
				s.log.Warn("identity comparison failed", "source", c.SourceURL, "error", err)
				break
			}
			if !cmp.IsSamePerson {
				s.log.Info("candidate discarded, different person",
					"source", c.SourceURL,
					"distance", cmp.Distance,
				)
				return verified, true
			}
			verified = true
		}
	}

	if tier.ContentCheck && len(asset.ContentVector) > 0 {
		vec, err := s.faces.GenerateContentEmbedding(ctx, imageData)
		if err != nil {
			s.log.Warn("content verification unavailable", "source", c.SourceURL, "error", err)
			return verified, false
		}

		sim, err := identity.CosineSimilarity(asset.ContentVector, vec)
		if err != nil {
			s.log.Warn("content comparison failed", "source", c.SourceURL, "error", err)
			return verified, false
		}
		if sim < constants.ContentSimilarityThreshold {
			s.log.Info("candidate discarded, content mismatch",
				"source", c.SourceURL,
				"similarity", sim,
			)
			return verified, true
		}
		verified = true
	}

	return verified, false
}

// matchTypeForScore classifies an exact-match backend score.
func matchTypeForScore(score float64) string {
	if score >= constants.ExactCopyScoreThreshold {
		return store.MatchTypeExactCopy
	}
	return store.MatchTypeAlteredCopy
}
