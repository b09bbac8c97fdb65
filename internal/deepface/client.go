// Package deepface is a client for the face/content embedding service. The
// service extracts 512-dimensional identity vectors from detected faces,
// generates CLIP content vectors, and compares embeddings server-side.
package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Client talks to the embedding service over HTTP.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	healthTTL time.Duration

	// Health responses are cached for healthTTL and refreshed on read, so
	// frequent probes do not hammer the model service.
	healthMu        sync.Mutex
	healthCheckedAt time.Time
	healthCached    *Health
}

// FacialArea is the bounding box of the detected face.
type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceEmbedding is the result of extracting an identity vector from an image.
// Embedding is nil when no face was detected.
type FaceEmbedding struct {
	Embedding      []float32   `json:"embedding"`
	FaceCount      int         `json:"face_count"`
	FaceConfidence float64     `json:"face_confidence"`
	FacialArea     *FacialArea `json:"facial_area"`
	ProcessingMs   float64     `json:"processing_time_ms"`
}

// FaceComparison is the service-side verdict on two identity vectors.
type FaceComparison struct {
	IsSamePerson  bool    `json:"is_same_person"`
	Distance      float64 `json:"distance"`
	Similarity    float64 `json:"similarity"`
	Confidence    float64 `json:"confidence"`
	ThresholdUsed float64 `json:"threshold_used"`
}

// Health reports whether the service and its models are ready.
type Health struct {
	Status     string
	FaceLoaded bool
	CLIPLoaded bool
}

// New creates a client for the embedding service at baseURL. healthTTL
// bounds how long a health-check result is reused before re-probing.
func New(baseURL string, healthTTL time.Duration) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedding service URL: %w", err)
	}
	return &Client{
		baseURL:   parsed,
		client:    &http.Client{Timeout: 60 * time.Second},
		healthTTL: healthTTL,
	}, nil
}

type extractRequest struct {
	Image            string `json:"image"`
	ImageType        string `json:"image_type"`
	EnforceDetection bool   `json:"enforce_detection"`
	Align            bool   `json:"align"`
}

// ExtractEmbedding extracts the identity vector of the most prominent face
// in the image. A faceless image yields a nil embedding, not an error.
func (c *Client) ExtractEmbedding(ctx context.Context, imageData []byte) (*FaceEmbedding, error) {
	req := extractRequest{
		Image:            base64.StdEncoding.EncodeToString(imageData),
		ImageType:        "base64",
		EnforceDetection: false,
		Align:            true,
	}

	var result FaceEmbedding
	if err := c.postJSON(ctx, "/api/v1/extract-embedding", req, &result); err != nil {
		return nil, fmt.Errorf("failed to extract face embedding: %w", err)
	}
	return &result, nil
}

type compareRequest struct {
	Embedding1 []float32 `json:"embedding1"`
	Embedding2 []float32 `json:"embedding2"`
	Threshold  *float64  `json:"threshold,omitempty"`
	Metric     string    `json:"distance_metric"`
}

// CompareFaces asks the service whether two identity vectors belong to the
// same person. A non-positive threshold selects the service default.
func (c *Client) CompareFaces(ctx context.Context, emb1, emb2 []float32, threshold float64) (*FaceComparison, error) {
	req := compareRequest{
		Embedding1: emb1,
		Embedding2: emb2,
		Metric:     "cosine",
	}
	if threshold > 0 {
		req.Threshold = &threshold
	}

	var result FaceComparison
	if err := c.postJSON(ctx, "/api/v1/compare-faces", req, &result); err != nil {
		return nil, fmt.Errorf("failed to compare faces: %w", err)
	}
	return &result, nil
}

type clipEmbedRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type clipEmbedResponse struct {
	Embedding    []float32 `json:"embedding"`
	Success      bool      `json:"success"`
	ProcessingMs float64   `json:"processing_time_ms"`
}

// GenerateContentEmbedding generates the 512-dimensional CLIP content vector
// for an image.
func (c *Client) GenerateContentEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	req := clipEmbedRequest{ImageBase64: base64.StdEncoding.EncodeToString(imageData)}

	var result clipEmbedResponse
	if err := c.postJSON(ctx, "/api/v1/clip/embed", req, &result); err != nil {
		return nil, fmt.Errorf("failed to generate content embedding: %w", err)
	}
	if !result.Success || len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned no content embedding")
	}
	return result.Embedding, nil
}

type healthResponse struct {
	Status string `json:"status"`
	Models struct {
		DeepFace struct {
			Loaded bool `json:"loaded"`
		} `json:"deepface"`
		CLIP struct {
			Loaded bool `json:"loaded"`
		} `json:"clip"`
	} `json:"models"`
}

// CheckHealth probes the service, reusing a cached result while it is
// younger than the configured TTL.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	if c.healthCached != nil && time.Since(c.healthCheckedAt) < c.healthTTL {
		return c.healthCached, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("/api/v1/health").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service health check failed with status %d: %s",
			resp.StatusCode, readErrorBody(resp.Body))
	}

	var raw healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	c.healthCached = &Health{
		Status:     raw.Status,
		FaceLoaded: raw.Models.DeepFace.Loaded,
		CLIPLoaded: raw.Models.CLIP.Loaded,
	}
	c.healthCheckedAt = time.Now()
	return c.healthCached, nil
}

// postJSON sends a JSON request and decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(path).String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
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
