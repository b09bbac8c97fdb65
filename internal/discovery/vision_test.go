package discovery

import (
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

func TestCandidatesFromWebDetection(t *testing.T) {
	wd := &visionpb.WebDetection{
		FullMatchingImages: []*visionpb.WebDetection_WebImage{
			{Url: "https://cdn.example.com/full.jpg", Score: 0.98},
		},
		PartialMatchingImages: []*visionpb.WebDetection_WebImage{
			{Url: "https://cdn.example.com/crop.jpg"},
		},
		PagesWithMatchingImages: []*visionpb.WebDetection_WebPage{
			{
				Url:       "https://blog.example.com/post",
				PageTitle: "Some blog post",
				FullMatchingImages: []*visionpb.WebDetection_WebImage{
					{Url: "https://blog.example.com/images/hero.jpg"},
				},
			},
		},
		VisuallySimilarImages: []*visionpb.WebDetection_WebImage{
			{Url: "https://other.example.com/lookalike.jpg", Score: 1.7},
		},
	}

	candidates, total := candidatesFromWebDetection(wd)

	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(candidates))
	}

	full := candidates[0]
	if full.MatchKind != MatchFull {
		t.Errorf("candidate[0] kind = %q, want full", full.MatchKind)
	}
	if full.Similarity != 0.98 {
		t.Errorf("scored entry similarity = %v, want 0.98", full.Similarity)
	}
	if full.SourceURL != full.ImageURL {
		t.Errorf("image entry source %q should equal image URL %q", full.SourceURL, full.ImageURL)
	}
	if full.Kind != KindVisual || full.Engine != visionEngineName {
		t.Errorf("candidate[0] engine/kind = %q/%q", full.Engine, full.Kind)
	}

	partial := candidates[1]
	if partial.MatchKind != MatchPartial {
		t.Errorf("candidate[1] kind = %q, want partial", partial.MatchKind)
	}
	if partial.Similarity != visionDefaultPartialSimilarity {
		t.Errorf("unscored partial similarity = %v, want fallback %v", partial.Similarity, visionDefaultPartialSimilarity)
	}

	page := candidates[2]
	if page.MatchKind != MatchPage {
		t.Errorf("candidate[2] kind = %q, want page", page.MatchKind)
	}
	if page.SourceURL != "https://blog.example.com/post" {
		t.Errorf("page candidate SourceURL = %q", page.SourceURL)
	}
	if page.ImageURL != "https://blog.example.com/images/hero.jpg" {
		t.Errorf("page candidate should pick the matched image on the page, got %q", page.ImageURL)
	}
	if page.Title != "Some blog post" {
		t.Errorf("page candidate Title = %q", page.Title)
	}

	similar := candidates[3]
	if similar.MatchKind != MatchSimilar {
		t.Errorf("candidate[3] kind = %q, want similar", similar.MatchKind)
	}
	if similar.Similarity != 1 {
		t.Errorf("over-unit score must clamp to 1, got %v", similar.Similarity)
	}

	for i, c := range candidates {
		if c.Rank != i+1 {
			t.Errorf("candidate[%d] rank = %d, want %d", i, c.Rank, i+1)
		}
	}
}

func TestCandidatesFromWebDetection_Empty(t *testing.T) {
	candidates, total := candidatesFromWebDetection(nil)
	if len(candidates) != 0 || total != 0 {
		t.Errorf("nil detection should yield nothing, got %d candidates, total %d", len(candidates), total)
	}

	candidates, total = candidatesFromWebDetection(&visionpb.WebDetection{})
	if len(candidates) != 0 || total != 0 {
		t.Errorf("empty detection should yield nothing, got %d candidates, total %d", len(candidates), total)
	}
}

func TestCandidatesFromWebDetection_SkipsBlankEntries(t *testing.T) {
	wd := &visionpb.WebDetection{
		FullMatchingImages: []*visionpb.WebDetection_WebImage{
			nil,
			{Url: ""},
			{Url: "https://cdn.example.com/full.jpg"},
		},
		PagesWithMatchingImages: []*visionpb.WebDetection_WebPage{
			nil,
			{Url: ""},
		},
	}

	candidates, total := candidatesFromWebDetection(wd)

	// Blank entries still count toward the backend total but produce no
	// candidates.
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Rank != 1 {
		t.Errorf("rank = %d, want 1", candidates[0].Rank)
	}
}

func TestNormalizeWebScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		fallback float64
		want     float64
	}{
		{"missing score uses fallback", 0, 0.9, 0.9},
		{"negative score uses fallback", -1, 0.5, 0.5},
		{"in-range score kept", 0.42, 0.9, 0.42},
		{"over-unit score clamped", 2.3, 0.9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeWebScore(tt.score, tt.fallback); got != tt.want {
				t.Errorf("normalizeWebScore(%v, %v) = %v, want %v", tt.score, tt.fallback, got, tt.want)
			}
		})
	}
}
