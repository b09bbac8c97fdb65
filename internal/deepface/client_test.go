package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractEmbedding(t *testing.T) {
	embedding := make([]float32, 512)
	embedding[0] = 0.25

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/extract-embedding" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["image_type"] != "base64" {
			t.Errorf("expected image_type 'base64', got %v", req["image_type"])
		}
		if req["image"] == "" {
			t.Error("expected base64 image payload")
		}
		if req["enforce_detection"] != false {
			t.Error("expected enforce_detection to be false")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding":          embedding,
			"face_count":         1,
			"face_confidence":    0.98,
			"facial_area":        map[string]int{"x": 10, "y": 20, "w": 100, "h": 120},
			"processing_time_ms": 42.5,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.ExtractEmbedding(context.Background(), []byte("fake-image-bytes"))
	if err != nil {
		t.Fatalf("ExtractEmbedding failed: %v", err)
	}

	if len(result.Embedding) != 512 {
		t.Errorf("expected 512-dim embedding, got %d", len(result.Embedding))
	}
	if result.FaceCount != 1 {
		t.Errorf("expected face_count 1, got %d", result.FaceCount)
	}
	if result.FacialArea == nil || result.FacialArea.W != 100 {
		t.Errorf("expected facial area width 100, got %+v", result.FacialArea)
	}
}

func TestExtractEmbedding_NoFace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding":          nil,
			"face_count":         0,
			"face_confidence":    0.0,
			"facial_area":        nil,
			"processing_time_ms": 12.0,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.ExtractEmbedding(context.Background(), []byte("no-face"))
	if err != nil {
		t.Fatalf("ExtractEmbedding failed: %v", err)
	}

	// Absent face is a valid outcome, not an error
	if result.Embedding != nil {
		t.Errorf("expected nil embedding, got %d values", len(result.Embedding))
	}
	if result.FaceCount != 0 {
		t.Errorf("expected face_count 0, got %d", result.FaceCount)
	}
}

func TestExtractEmbedding_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": "INTERNAL_ERROR", "message": "model crashed"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.ExtractEmbedding(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestCompareFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/compare-faces" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["distance_metric"] != "cosine" {
			t.Errorf("expected cosine metric, got %v", req["distance_metric"])
		}
		if req["threshold"] != 0.5 {
			t.Errorf("expected threshold 0.5, got %v", req["threshold"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"is_same_person": true,
			"distance":       0.31,
			"similarity":     0.69,
			"confidence":     0.38,
			"threshold_used": 0.5,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	emb := make([]float32, 512)
	result, err := client.CompareFaces(context.Background(), emb, emb, 0.5)
	if err != nil {
		t.Fatalf("CompareFaces failed: %v", err)
	}

	if !result.IsSamePerson {
		t.Error("expected same-person verdict")
	}
	if result.Distance != 0.31 {
		t.Errorf("expected distance 0.31, got %f", result.Distance)
	}
	if result.ThresholdUsed != 0.5 {
		t.Errorf("expected threshold_used 0.5, got %f", result.ThresholdUsed)
	}
}

func TestCompareFaces_DefaultThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		// Threshold must be omitted entirely so the service picks its default
		if _, present := req["threshold"]; present {
			t.Error("expected threshold to be omitted for non-positive input")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"is_same_person": false,
			"distance":       0.8,
			"similarity":     0.2,
			"confidence":     0.18,
			"threshold_used": 0.68,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	emb := make([]float32, 512)
	result, err := client.CompareFaces(context.Background(), emb, emb, 0)
	if err != nil {
		t.Fatalf("CompareFaces failed: %v", err)
	}
	if result.ThresholdUsed != 0.68 {
		t.Errorf("expected service default threshold 0.68, got %f", result.ThresholdUsed)
	}
}

func TestGenerateContentEmbedding(t *testing.T) {
	embedding := make([]float32, 512)
	embedding[3] = 0.5

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/clip/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["image_base64"] == "" {
			t.Error("expected base64 image payload")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding":          embedding,
			"success":            true,
			"processing_time_ms": 20.0,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.GenerateContentEmbedding(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("GenerateContentEmbedding failed: %v", err)
	}
	if len(result) != 512 {
		t.Errorf("expected 512-dim embedding, got %d", len(result))
	}
}

func TestGenerateContentEmbedding_Unsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding":          nil,
			"success":            false,
			"processing_time_ms": 5.0,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	if _, err := client.GenerateContentEmbedding(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error when service reports no embedding")
	}
}

func TestCheckHealth_Caching(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "healthy",
			"models": map[string]interface{}{
				"deepface": map[string]interface{}{"loaded": true},
				"clip":     map[string]interface{}{"loaded": false},
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("first CheckHealth failed: %v", err)
	}
	second, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("second CheckHealth failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected one upstream probe within TTL, got %d", callCount)
	}
	if first.Status != "healthy" || !first.FaceLoaded || first.CLIPLoaded {
		t.Errorf("unexpected health result: %+v", first)
	}
	if second != first {
		t.Error("expected cached health result to be reused")
	}
}

func TestCheckHealth_RefreshAfterTTL(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "healthy",
			"models": map[string]interface{}{
				"deepface": map[string]interface{}{"loaded": true},
				"clip":     map[string]interface{}{"loaded": true},
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := client.CheckHealth(context.Background()); err != nil {
		t.Fatalf("first CheckHealth failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := client.CheckHealth(context.Background()); err != nil {
		t.Fatalf("second CheckHealth failed: %v", err)
	}

	if callCount != 2 {
		t.Errorf("expected a fresh probe after TTL expiry, got %d calls", callCount)
	}
}

// newTestClient builds a client pointed at the test server with caching
// effectively disabled.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(baseURL, time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}
