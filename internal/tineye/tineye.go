// Package tineye is a client for the exact-match search API. Given an image
// (by URL or upload) it returns pages carrying byte-identical or lightly
// altered copies, with per-match scores and backlinks.
package tineye

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Confidence labels for a match, derived from its score.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Client talks to the exact-match search API.
type Client struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
}

// Match is one page carrying a copy of the searched image.
type Match struct {
	ImageURL   string
	SourceURL  string // page the copy appears on
	Domain     string
	Score      float64 // 0-100
	Confidence string  // HIGH, MEDIUM or LOW
	Tags       []string
	Backlinks  []string
}

// SearchResult is the outcome of one exact-match search.
type SearchResult struct {
	Matches    []Match
	TotalFound int
	SearchedAt time.Time
}

// SearchOptions bound a search. A zero Limit means the API default.
type SearchOptions struct {
	Limit int
}

// New creates an exact-match client. An empty API key leaves the client
// unconfigured; searches then fail and IsConfigured reports false.
func New(baseURL, apiKey string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exact-match API URL: %w", err)
	}
	return &Client{
		baseURL: parsed,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name identifies the backend in match records.
func (c *Client) Name() string {
	return "tineye"
}

// IsConfigured reports whether the client has an API key.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// SearchByURL finds copies of the image at imageURL.
func (c *Client) SearchByURL(ctx context.Context, imageURL string, opts SearchOptions) (*SearchResult, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("exact-match search is not configured")
	}

	form := url.Values{}
	form.Set("image_url", imageURL)
	if opts.Limit > 0 {
		form.Set("limit", strconv.Itoa(opts.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath("/rest/search/").String(),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doSearch(req)
}

// SearchByUpload finds copies of the uploaded image bytes.
func (c *Client) SearchByUpload(ctx context.Context, imageData []byte, filename string, opts SearchOptions) (*SearchResult, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("exact-match search is not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image_upload", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if opts.Limit > 0 {
		if err := writer.WriteField("limit", strconv.Itoa(opts.Limit)); err != nil {
			return nil, fmt.Errorf("failed to write limit field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath("/rest/search/").String(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.doSearch(req)
}

type searchResponse struct {
	Code     int      `json:"code"`
	Messages []string `json:"messages"`
	Results  struct {
		TotalResults int `json:"total_results"`
		Matches      []struct {
			ImageURL  string   `json:"image_url"`
			Domain    string   `json:"domain"`
			Score     float64  `json:"score"`
			Tags      []string `json:"tags"`
			Backlinks []struct {
				URL       string `json:"url"`
				Backlink  string `json:"backlink"`
				CrawlDate string `json:"crawl_date"`
			} `json:"backlinks"`
		} `json:"matches"`
	} `json:"results"`
}

func (c *Client) doSearch(req *http.Request) (*SearchResult, error) {
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if raw.Code != 0 && raw.Code != http.StatusOK {
		return nil, fmt.Errorf("search failed with code %d: %s", raw.Code, strings.Join(raw.Messages, "; "))
	}

	result := &SearchResult{
		Matches:    make([]Match, 0, len(raw.Results.Matches)),
		TotalFound: raw.Results.TotalResults,
		SearchedAt: time.Now(),
	}

	for _, m := range raw.Results.Matches {
		match := Match{
			ImageURL:   m.ImageURL,
			Domain:     m.Domain,
			Score:      m.Score,
			Confidence: confidenceForScore(m.Score),
			Tags:       m.Tags,
		}
		for _, b := range m.Backlinks {
			if b.Backlink != "" {
				match.Backlinks = append(match.Backlinks, b.Backlink)
			}
		}
		// The first backlink is the page the copy was crawled from; matches
		// without any backlink fall back to the image URL itself.
		if len(match.Backlinks) > 0 {
			match.SourceURL = match.Backlinks[0]
		} else {
			match.SourceURL = m.ImageURL
		}
		result.Matches = append(result.Matches, match)
	}

	return result, nil
}

// confidenceForScore buckets a match score into the API's confidence labels.
func confidenceForScore(score float64) string {
	switch {
	case score >= 90:
		return ConfidenceHigh
	case score >= 70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// readErrorBody reads the response body for error messages.
// Returns empty string if reading fails (we're already in an error path).
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(r)
	if err != nil {
		return "(could not read error body)"
	}
	return string(body)
}
