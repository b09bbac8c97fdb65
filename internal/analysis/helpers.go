package analysis

import (
	"fmt"
	"strings"
)

// buildMatchContent builds the user message describing one match.
// This is shared across all AI providers.
func buildMatchContent(req *MatchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Protected photo: %s\n", req.AssetName)
	if req.AssetImageURL != "" {
		fmt.Fprintf(&b, "Original hosted at: %s\n", req.AssetImageURL)
	}
	fmt.Fprintf(&b, "Found at: %s\n", req.SourceURL)
	fmt.Fprintf(&b, "Match type: %s\n", req.MatchType)
	if req.Similarity > 0 {
		fmt.Fprintf(&b, "Similarity: %.2f\n", req.Similarity)
	}
	if req.DiscoveryEngine != "" {
		fmt.Fprintf(&b, "Found by: %s\n", req.DiscoveryEngine)
	}
	return b.String()
}

// normalizeRiskLevel maps the model's risk label onto low/medium/high.
// Anything unrecognized becomes "medium" so downstream consumers never see
// a made-up level.
func normalizeRiskLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}
