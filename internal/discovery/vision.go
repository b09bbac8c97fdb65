package discovery

import (
	"context"
	"fmt"
	"math"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/kozaktomas/photo-sentry/internal/logging"
)

const visionEngineName = "vision"

// Fallback similarities for web-detection entries that arrive without a
// score. Full and partial matches are copies by definition; pages and
// visually similar images are weaker signals.
const (
	visionDefaultFullSimilarity    = 0.90
	visionDefaultPartialSimilarity = 0.70
	visionDefaultPageSimilarity    = 0.85
	visionDefaultSimilarSimilarity = 0.50
)

// VisionEngine finds copies of the probe image on the public web through the
// Cloud Vision web-detection feature. Its four result buckets (full matches,
// partial matches, pages with matching images, visually similar images) carry
// straight into candidate match kinds.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
	log    *logging.Logger
}

// NewVision creates the web-detection engine. An empty credentials file falls
// back to ambient application-default credentials.
func NewVision(ctx context.Context, credentialsFile string, log *logging.Logger) (*VisionEngine, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	return &VisionEngine{
		client: client,
		log:    log,
	}, nil
}

// Name identifies this engine in candidates, warnings and cache keys.
func (e *VisionEngine) Name() string {
	return visionEngineName
}

// Kind reports that candidates from this engine need verification downstream.
func (e *VisionEngine) Kind() EngineKind {
	return KindVisual
}

// Close releases the underlying gRPC connection.
func (e *VisionEngine) Close() error {
	return e.client.Close()
}

// Discover runs one web detection over the probe bytes and maps the result
// buckets into ranked candidates, strongest bucket first.
func (e *VisionEngine) Discover(ctx context.Context, asset Asset, opts Options) (*Result, error) {
	if len(asset.ImageData) == 0 {
		return nil, fmt.Errorf("no image data for asset %s", asset.ID)
	}

	start := time.Now()

	maxResults := opts.MaxCandidates
	if maxResults <= 0 {
		maxResults = 50
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: asset.ImageData},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_WEB_DETECTION, MaxResults: int32(maxResults)},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, fmt.Errorf("vision returned no response")
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	candidates, total := candidatesFromWebDetection(r0.WebDetection)

	result := &Result{
		Provider:   e.Name(),
		TotalFound: total,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if opts.MaxCandidates > 0 && len(candidates) > opts.MaxCandidates {
		candidates = candidates[:opts.MaxCandidates]
		result.Truncated = true
	}
	result.Candidates = candidates

	return result, nil
}

// candidatesFromWebDetection flattens the four web-detection buckets into one
// ranked candidate list. Image-type entries use the image URL as their source
// page because the API does not say where they were crawled from; page-type
// entries carry the real page URL plus title and, when present, the matched
// image on that page.
func candidatesFromWebDetection(wd *visionpb.WebDetection) ([]Candidate, int) {
	if wd == nil {
		return nil, 0
	}

	total := len(wd.FullMatchingImages) + len(wd.PartialMatchingImages) +
		len(wd.PagesWithMatchingImages) + len(wd.VisuallySimilarImages)

	candidates := make([]Candidate, 0, total)
	rank := 0

	appendImage := func(img *visionpb.WebDetection_WebImage, kind MatchKind, fallback float64) {
		if img == nil || img.Url == "" {
			return
		}
		rank++
		candidates = append(candidates, Candidate{
			Engine:     visionEngineName,
			Kind:       KindVisual,
			ImageURL:   img.Url,
			SourceURL:  img.Url,
			Rank:       rank,
			Similarity: normalizeWebScore(float64(img.Score), fallback),
			MatchKind:  kind,
		})
	}

	for _, img := range wd.FullMatchingImages {
		appendImage(img, MatchFull, visionDefaultFullSimilarity)
	}
	for _, img := range wd.PartialMatchingImages {
		appendImage(img, MatchPartial, visionDefaultPartialSimilarity)
	}
	for _, page := range wd.PagesWithMatchingImages {
		if page == nil || page.Url == "" {
			continue
		}
		rank++
		c := Candidate{
			Engine:     visionEngineName,
			Kind:       KindVisual,
			SourceURL:  page.Url,
			Rank:       rank,
			Similarity: normalizeWebScore(float64(page.Score), visionDefaultPageSimilarity),
			MatchKind:  MatchPage,
			Title:      page.PageTitle,
		}
		if len(page.FullMatchingImages) > 0 && page.FullMatchingImages[0] != nil {
			c.ImageURL = page.FullMatchingImages[0].Url
		} else if len(page.PartialMatchingImages) > 0 && page.PartialMatchingImages[0] != nil {
			c.ImageURL = page.PartialMatchingImages[0].Url
		}
		candidates = append(candidates, c)
	}
	for _, img := range wd.VisuallySimilarImages {
		appendImage(img, MatchSimilar, visionDefaultSimilarSimilarity)
	}

	return candidates, total
}

// normalizeWebScore maps the API's unbounded score into 0-1. Entries without
// a score get a per-kind fallback so the tier gate still sees a similarity.
func normalizeWebScore(score, fallback float64) float64 {
	if score <= 0 {
		return fallback
	}
	return math.Min(1, score)
}
