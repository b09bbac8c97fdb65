package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/logging"
)

const (
	facecheckPollInterval = 2 * time.Second
	facecheckMaxPolls     = 90
)

// FaceCheckEngine finds pages showing the same person through a face search
// API. A search is asynchronous on the backend: upload the probe image, then
// poll until the index returns results.
type FaceCheckEngine struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	log     *logging.Logger

	// PollInterval and MaxPolls bound the result polling loop. Defaults are
	// set by NewFaceCheck; tests shorten them.
	PollInterval time.Duration
	MaxPolls     int
}

// NewFaceCheck creates the face search engine.
func NewFaceCheck(baseURL, token string, log *logging.Logger) (*FaceCheckEngine, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse face search URL: %w", err)
	}
	return &FaceCheckEngine{
		baseURL:      parsed,
		token:        token,
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log,
		PollInterval: facecheckPollInterval,
		MaxPolls:     facecheckMaxPolls,
	}, nil
}

// Name identifies this engine in candidates, warnings and cache keys.
func (e *FaceCheckEngine) Name() string {
	return "facecheck"
}

// Kind reports that candidates from this engine are identity-verified.
func (e *FaceCheckEngine) Kind() EngineKind {
	return KindIdentity
}

type facecheckUploadResponse struct {
	IDSearch string `json:"id_search"`
	Progress int    `json:"progress"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

type facecheckSearchRequest struct {
	IDSearch     string `json:"id_search"`
	WithProgress bool   `json:"with_progress"`
	StatusOnly   bool   `json:"status_only"`
	Demo         bool   `json:"demo"`
}

type facecheckItem struct {
	GUID   string  `json:"guid"`
	Score  float64 `json:"score"`
	URL    string  `json:"url"`
	Base64 string  `json:"base64"`
}

type facecheckSearchResponse struct {
	IDSearch string `json:"id_search"`
	Progress int    `json:"progress"`
	Error    string `json:"error"`
	Message  string `json:"message"`
	Output   *struct {
		Items []facecheckItem `json:"items"`
	} `json:"output"`
}

// Discover uploads the probe image and polls for pages showing the same
// person. Items arrive scored 0-100 and ordered best first; scores carry over
// to the candidates so the pipeline can gate alerts on them.
func (e *FaceCheckEngine) Discover(ctx context.Context, asset Asset, opts Options) (*Result, error) {
	if len(asset.ImageData) == 0 {
		return nil, fmt.Errorf("no image data for asset %s", asset.ID)
	}

	start := time.Now()

	searchID, err := e.upload(ctx, asset.ImageData)
	if err != nil {
		return nil, fmt.Errorf("failed to upload probe image: %w", err)
	}

	items, err := e.pollResults(ctx, searchID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Provider:   e.Name(),
		TotalFound: len(items),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if opts.MaxCandidates > 0 && len(items) > opts.MaxCandidates {
		items = items[:opts.MaxCandidates]
		result.Truncated = true
	}

	result.Candidates = make([]Candidate, 0, len(items))
	for i, item := range items {
		result.Candidates = append(result.Candidates, Candidate{
			Engine:    e.Name(),
			Kind:      KindIdentity,
			SourceURL: item.URL,
			Rank:      i + 1,
			Score:     item.Score,
			Thumbnail: item.Base64,
		})
	}

	return result, nil
}

func (e *FaceCheckEngine) upload(ctx context.Context, imageData []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="images"; filename="probe.jpg"`)
	h.Set("Content-Type", detectImageMIME(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL.JoinPath("/api/upload_pic").String(), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var uploaded facecheckUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.Error != "" {
		return "", fmt.Errorf("upload rejected: %s", uploaded.Error)
	}
	if uploaded.IDSearch == "" {
		return "", fmt.Errorf("upload returned no search id")
	}

	return uploaded.IDSearch, nil
}

func (e *FaceCheckEngine) pollResults(ctx context.Context, searchID string) ([]facecheckItem, error) {
	for attempt := 0; attempt < e.MaxPolls; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.PollInterval):
			}
		}

		status, err := e.search(ctx, searchID)
		if err != nil {
			return nil, err
		}
		if status.Error != "" {
			return nil, fmt.Errorf("face search failed: %s", status.Error)
		}
		if status.Output != nil {
			return status.Output.Items, nil
		}

		e.log.Debug("face search in progress", "search_id", searchID, "progress", status.Progress)
	}

	return nil, fmt.Errorf("face search did not finish after %d polls", e.MaxPolls)
}

func (e *FaceCheckEngine) search(ctx context.Context, searchID string) (*facecheckSearchResponse, error) {
	payload, err := json.Marshal(facecheckSearchRequest{
		IDSearch:     searchID,
		WithProgress: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL.JoinPath("/api/search").String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var status facecheckSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return &status, nil
}

// detectImageMIME detects the MIME type from image magic bytes.
func detectImageMIME(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
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
