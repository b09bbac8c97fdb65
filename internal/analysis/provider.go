// Package analysis produces short AI-written risk notes for detected photo
// reuse. Providers are optional; when none is configured alerts go out
// without a note.
package analysis

import "context"

// MatchRequest describes one detected reuse for the provider to assess.
type MatchRequest struct {
	AssetName       string  // Owner-facing name of the protected photo
	AssetImageURL   string  // Where the original is hosted
	SourceURL       string  // Page where the reuse was found
	MatchType       string  // identity_match, person_candidate, exact_copy, altered_copy
	Similarity      float64 // 0-1
	DiscoveryEngine string  // Engine that surfaced the match
}

// MatchAnalysis is the provider's assessment of a single match.
type MatchAnalysis struct {
	// Summary in one or two sentences, shown in the alert.
	Summary string `json:"summary"`
	// RiskLevel is "low", "medium" or "high".
	RiskLevel string `json:"risk_level"`
}

// Provider defines the interface for AI analysis backends.
type Provider interface {
	Name() string
	AnalyzeMatch(ctx context.Context, req *MatchRequest) (*MatchAnalysis, error)
}
