package scanner

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-sentry/internal/alert"
	"github.com/kozaktomas/photo-sentry/internal/analysis"
	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// persistStats tallies what the scan-run transaction did.
type persistStats struct {
	created int
	updated int
	failed  int
}

func (p *persistStats) count(created bool) {
	if created {
		p.created++
	} else {
		p.updated++
	}
}

// alertJob is one alert queued during the transaction and dispatched only
// after it commits.
type alertJob struct {
	matchID    string
	matchType  string
	sourceURL  string
	similarity float64
	engine     string
}

// persist writes every surviving finding in one transaction: candidates
// first, then their expansion matches as children, then the direct matches.
// A failed record is logged and skipped without poisoning the rest. Alert
// jobs are collected along the way; on a failed transaction they are
// dropped, because nothing was committed to alert about.
func (s *Scanner) persist(ctx context.Context, asset *store.ProtectedAsset, groupID string, candidates []ExpandedCandidate, direct []tineye.Match) (persistStats, []alertJob, error) {
	var (
		stats persistStats
		jobs  []alertJob
	)

	attempted := len(direct)
	for _, ec := range candidates {
		attempted += 1 + len(ec.Matches)
	}
	if attempted == 0 {
		return stats, nil, nil
	}

	err := s.matches.InScanTx(ctx, s.cfg.Scan.TxTimeout, func(tx store.ScanTx) error {
		for i := range candidates {
			ec := candidates[i]
			c := ec.Candidate

			record := &store.MatchRecord{
				ProtectedAssetID:   asset.ID,
				SourceURL:          c.SourceURL,
				MatchType:          store.MatchTypePersonCandidate,
				Similarity:         c.Similarity,
				DiscoveryEngine:    c.Engine,
				VerificationEngine: ec.VerificationEngine,
				CandidateGroupID:   groupID,
			}
			if c.Kind == discovery.KindIdentity {
				record.MatchType = store.MatchTypeIdentity
				record.Similarity = ec.IdentitySimilarity
			}

			outcome, err := tx.UpsertMatch(ctx, record)
			if err != nil {
				s.log.Warn("failed to persist candidate", "source", c.SourceURL, "error", err)
				stats.failed += 1 + len(ec.Matches)
				continue
			}
			stats.count(outcome.Created)

			if ec.AutoAlert {
				jobs = append(jobs, alertJob{
					matchID:    outcome.ID,
					matchType:  record.MatchType,
					sourceURL:  record.SourceURL,
					similarity: record.Similarity,
					engine:     record.DiscoveryEngine,
				})
			}

			for _, m := range ec.Matches {
				child := &store.MatchRecord{
					ProtectedAssetID:  asset.ID,
					SourceURL:         m.SourceURL,
					MatchType:         matchTypeForScore(m.Score),
					Similarity:        m.Score / 100,
					DiscoveryEngine:   s.exact.Name(),
					ParentCandidateID: outcome.ID,
					CandidateGroupID:  groupID,
				}
				childOutcome, err := tx.UpsertMatch(ctx, child)
				if err != nil {
					s.log.Warn("failed to persist expansion match", "source", m.SourceURL, "error", err)
					stats.failed++
					continue
				}
				stats.count(childOutcome.Created)
			}
		}

		for _, m := range direct {
			record := &store.MatchRecord{
				ProtectedAssetID: asset.ID,
				SourceURL:        m.SourceURL,
				MatchType:        matchTypeForScore(m.Score),
				Similarity:       m.Score / 100,
				DiscoveryEngine:  s.exact.Name(),
				CandidateGroupID: groupID,
			}
			outcome, err := tx.UpsertMatch(ctx, record)
			if err != nil {
				s.log.Warn("failed to persist direct match", "source", m.SourceURL, "error", err)
				stats.failed++
				continue
			}
			stats.count(outcome.Created)
		}

		return nil
	})
	if err != nil {
		return persistStats{failed: attempted}, nil, err
	}

	return stats, jobs, nil
}

// dispatchAlerts sends one alert per queued job, strictly after the
// transaction committed. A failed dispatch is counted and never retried.
func (s *Scanner) dispatchAlerts(ctx context.Context, asset *store.ProtectedAsset, jobs []alertJob) (sent, failed int) {
	for _, job := range jobs {
		a := &store.Alert{
			OwnerID:       asset.OwnerID,
			MatchRecordID: job.matchID,
			Severity:      alert.SeverityFor(job.matchType),
			Type:          job.matchType,
			Message:       alert.MessageFor(asset.Name, job.matchType, job.sourceURL),
			AnalysisInfo:  s.analyzeMatch(ctx, asset, job),
		}
		if err := s.alerter.Send(ctx, a); err != nil {
			s.log.Warn("alert dispatch failed", "match", job.matchID, "error", err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// analyzeMatch asks the analysis provider for a short risk note. Analysis
// is optional; any failure yields an empty note and the alert goes out
// anyway.
func (s *Scanner) analyzeMatch(ctx context.Context, asset *store.ProtectedAsset, job alertJob) string {
	if s.analysis == nil {
		return ""
	}

	res, err := s.analysis.AnalyzeMatch(ctx, &analysis.MatchRequest{
		AssetName:       asset.Name,
		AssetImageURL:   asset.ImageURL,
		SourceURL:       job.sourceURL,
		MatchType:       job.matchType,
		Similarity:      job.similarity,
		DiscoveryEngine: job.engine,
	})
	if err != nil {
		s.log.Warn("match analysis failed", "match", job.matchID, "error", err)
		return ""
	}

	return fmt.Sprintf("%s (risk: %s)", res.Summary, res.RiskLevel)
}
