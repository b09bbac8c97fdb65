// Package discovery defines the backends that search the public web for
// reuses of a protected photo. Each backend implements Engine; the scanner
// fans a probe image out to all enabled engines and merges their candidates.
package discovery

import (
	"context"
)

// EngineKind tells the downstream pipeline how much to trust an engine's
// candidates. Identity engines match the person in the photo; visual engines
// match the image content and need verification.
type EngineKind string

const (
	KindIdentity EngineKind = "identity"
	KindVisual   EngineKind = "visual"
)

// MatchKind classifies how a visual engine matched a candidate image.
type MatchKind string

const (
	MatchFull    MatchKind = "full"    // whole image found
	MatchPartial MatchKind = "partial" // cropped or padded copy
	MatchPage    MatchKind = "page"    // page carrying a matching image
	MatchSimilar MatchKind = "similar" // visually similar, not a copy
)

// Asset is the probe image a scan run searches for.
type Asset struct {
	ID        string
	ImageURL  string
	ImageData []byte
}

// Candidate is one place on the web where an engine found the probe.
type Candidate struct {
	Engine     string     `json:"engine"`
	Kind       EngineKind `json:"kind"`
	ImageURL   string     `json:"image_url,omitempty"`
	SourceURL  string     `json:"source_url"`
	Rank       int        `json:"rank"`
	Score      float64    `json:"score,omitempty"`      // 0-100, 0 when the engine does not score
	Similarity float64    `json:"similarity,omitempty"` // 0-1, visual engines only
	MatchKind  MatchKind  `json:"match_kind,omitempty"`
	Thumbnail  string     `json:"thumbnail,omitempty"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Title      string     `json:"title,omitempty"`
}

// Options bound a single discovery call.
type Options struct {
	MaxCandidates int
	SkipCache     bool
}

// Result is what one engine found for one probe.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Provider   string      `json:"provider"`
	TotalFound int         `json:"total_found"`
	Truncated  bool        `json:"truncated"`
	CacheHit   bool        `json:"cache_hit"`
	DurationMs int64       `json:"duration_ms"`
}

// Engine is a search backend that finds reuses of a probe image.
type Engine interface {
	Name() string
	Kind() EngineKind
	Discover(ctx context.Context, asset Asset, opts Options) (*Result, error)
}
