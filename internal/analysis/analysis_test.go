package analysis

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildMatchContent(t *testing.T) {
	req := &MatchRequest{
		AssetName:       "Summer portrait",
		AssetImageURL:   "https://cdn.example.com/portrait.jpg",
		SourceURL:       "https://pirate.example.com/stolen.jpg",
		MatchType:       "exact_copy",
		Similarity:      0.92,
		DiscoveryEngine: "tineye",
	}

	content := buildMatchContent(req)

	for _, want := range []string{
		"Protected photo: Summer portrait",
		"Original hosted at: https://cdn.example.com/portrait.jpg",
		"Found at: https://pirate.example.com/stolen.jpg",
		"Match type: exact_copy",
		"Similarity: 0.92",
		"Found by: tineye",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("expected content to contain %q, got:\n%s", want, content)
		}
	}
}

func TestBuildMatchContent_OmitsEmptyFields(t *testing.T) {
	req := &MatchRequest{
		AssetName: "Summer portrait",
		SourceURL: "https://pirate.example.com/stolen.jpg",
		MatchType: "person_candidate",
	}

	content := buildMatchContent(req)

	if strings.Contains(content, "Original hosted at") {
		t.Error("expected no original URL line for empty AssetImageURL")
	}
	if strings.Contains(content, "Similarity") {
		t.Error("expected no similarity line for zero similarity")
	}
	if strings.Contains(content, "Found by") {
		t.Error("expected no engine line for empty DiscoveryEngine")
	}
}

func TestNormalizeRiskLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"low", "low"},
		{"LOW", "low"},
		{" High ", "high"},
		{"medium", "medium"},
		{"critical", "medium"},
		{"", "medium"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got := normalizeRiskLevel(tc.input)
			if got != tc.want {
				t.Errorf("normalizeRiskLevel(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestMatchAnalysis_Unmarshal(t *testing.T) {
	payload := `{"summary": "Exact copy on a storefront page.", "risk_level": "high"}`

	var analysis MatchAnalysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if analysis.Summary != "Exact copy on a storefront page." {
		t.Errorf("unexpected summary: %q", analysis.Summary)
	}
	if analysis.RiskLevel != "high" {
		t.Errorf("expected risk_level 'high', got %q", analysis.RiskLevel)
	}
}

func TestMatchAnalysisPrompt_Embedded(t *testing.T) {
	if matchAnalysisPrompt == "" {
		t.Fatal("expected embedded prompt to be non-empty")
	}
	if !strings.Contains(matchAnalysisPrompt, "risk_level") {
		t.Error("expected prompt to describe the risk_level field")
	}
}
