package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/assets"
	"github.com/kozaktomas/photo-sentry/internal/config"
	"github.com/kozaktomas/photo-sentry/internal/constants"
	"github.com/kozaktomas/photo-sentry/internal/deepface"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/scanner"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/store/mock"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Scan: config.ScanConfig{
			MaxCandidates: 50,
			MaxExpansions: 10,
			TxTimeout:     time.Minute,
		},
	}
}

func axisVector(axis int) []float32 {
	v := make([]float32, constants.EmbeddingDim)
	v[axis] = 1
	return v
}

// testJPEG encodes a small decodable photo for intake requests.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func activeAsset(id string) store.ProtectedAsset {
	return store.ProtectedAsset{
		ID:       id,
		OwnerID:  "owner-1",
		Name:     "Press portrait",
		ImageURL: "https://assets.example.com/portrait.jpg",
		Status:   store.AssetStatusActive,
	}
}

type fakeEmbed struct {
	extract    *deepface.FaceEmbedding
	extractErr error
	content    []float32
	contentErr error
}

func (f *fakeEmbed) ExtractEmbedding(ctx context.Context, imageData []byte) (*deepface.FaceEmbedding, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extract, nil
}

func (f *fakeEmbed) GenerateContentEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if f.contentErr != nil {
		return nil, f.contentErr
	}
	return f.content, nil
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := f.data[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no route to host")
}

type fakeHealth struct {
	health *deepface.Health
	err    error
}

func (f *fakeHealth) CheckHealth(ctx context.Context) (*deepface.Health, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.health, nil
}

// fakeRunner stands in for the scan pipeline. When release is set, Scan
// blocks until the channel closes or the context ends; a context end mirrors
// the real pipeline by returning a degraded result instead of an error.
type fakeRunner struct {
	mu       sync.Mutex
	result   *scanner.ScanResult
	err      error
	started  chan string
	release  chan struct{}
	lastOpts scanner.ScanOptions
}

func (f *fakeRunner) Scan(ctx context.Context, asset *store.ProtectedAsset, opts scanner.ScanOptions) (*scanner.ScanResult, error) {
	f.mu.Lock()
	f.lastOpts = opts
	started := f.started
	release := f.release
	f.mu.Unlock()

	if started != nil {
		started <- asset.ID
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return &scanner.ScanResult{
				AssetID:  asset.ID,
				Warnings: []string{"scan interrupted"},
			}, nil
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &scanner.ScanResult{AssetID: asset.ID, CandidateGroupID: "group-1"}, nil
}

func (f *fakeRunner) options() scanner.ScanOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}

type testServer struct {
	server  *Server
	cfg     *config.Config
	assets  *mock.MockAssetStore
	matches *mock.MockMatchStore
	alerts  *mock.MockAlertStore
	index   *store.AssetIndex
	embed   *fakeEmbed
	fetcher *fakeFetcher
	runner  *fakeRunner
	health  *fakeHealth
	apiKey  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		cfg:     testConfig(),
		assets:  mock.NewMockAssetStore(),
		matches: mock.NewMockMatchStore(),
		alerts:  mock.NewMockAlertStore(),
		index:   store.NewAssetIndex(),
		embed: &fakeEmbed{
			extract: &deepface.FaceEmbedding{Embedding: axisVector(0), FaceCount: 1},
			content: axisVector(1),
		},
		fetcher: &fakeFetcher{data: map[string][]byte{}},
		runner:  &fakeRunner{},
		health:  &fakeHealth{health: &deepface.Health{Status: "healthy", FaceLoaded: true, CLIPLoaded: true}},
	}

	service := assets.New(ts.assets, ts.index, ts.embed, ts.fetcher, logging.Nop())
	ts.server = NewServer(ts.cfg, "127.0.0.1", 0, Deps{
		Assets:   service,
		Runner:   ts.runner,
		Store:    ts.assets,
		Matches:  ts.matches,
		Alerts:   ts.alerts,
		Embedder: ts.health,
		Log:      logging.Nop(),
	})
	return ts
}

// do performs a request against the router, attaching the configured API key.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if ts.apiKey != "" {
		req.Header.Set("X-API-Key", ts.apiKey)
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodGet, path, nil)
}

func (ts *testServer) jobPayload(t *testing.T, jobID string) scanJobPayload {
	t.Helper()
	rec := ts.get(t, "/api/v1/scans/"+jobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("job status returned %d: %s", rec.Code, rec.Body.String())
	}
	var payload scanJobPayload
	parseJSONResponse(t, rec, &payload)
	return payload
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitForJobStatus(t *testing.T, ts *testServer, jobID string, want JobStatus) scanJobPayload {
	t.Helper()
	var payload scanJobPayload
	waitFor(t, 2*time.Second, func() bool {
		payload = ts.jobPayload(t, jobID)
		return payload.Status == want
	}, fmt.Sprintf("job %s never reached status %q", jobID, want))
	return payload
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error containing the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if !strings.Contains(result["error"], expectedMessage) {
		t.Errorf("expected error containing '%s', got '%s'", expectedMessage, result["error"])
	}
}
