package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-sentry/internal/constants"
	"github.com/kozaktomas/photo-sentry/internal/deepface"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/store/mock"
)

const portraitURL = "https://assets.example.com/portrait.jpg"

func axisVector(axis int) []float32 {
	v := make([]float32, constants.EmbeddingDim)
	v[axis] = 1
	return v
}

// gradientJPEG encodes a small decodable photo; seed varies the pixels so two
// calls with different seeds produce different bytes.
func gradientJPEG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x*4) + seed, uint8(y * 4), seed, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

type fakeEmbed struct {
	extract        *deepface.FaceEmbedding
	extractErr     error
	content        []float32
	contentErr     error
	contentByImage map[string][]float32
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
	if vec, ok := f.contentByImage[string(imageData)]; ok {
		return vec, nil
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

type fixture struct {
	service *Service
	assets  *mock.MockAssetStore
	index   *store.AssetIndex
	embed   *fakeEmbed
	fetcher *fakeFetcher
}

func newFixture() *fixture {
	f := &fixture{
		assets: mock.NewMockAssetStore(),
		index:  store.NewAssetIndex(),
		embed: &fakeEmbed{
			extract: &deepface.FaceEmbedding{Embedding: axisVector(0), FaceCount: 1},
			content: axisVector(1),
		},
		fetcher: &fakeFetcher{data: map[string][]byte{}},
	}
	f.service = New(f.assets, f.index, f.embed, f.fetcher, logging.Nop())
	return f
}

func (f *fixture) addAsset(id string, axis int) {
	f.assets.AddAsset(store.ProtectedAsset{
		ID:            id,
		OwnerID:       "owner-1",
		Name:          id,
		ContentVector: axisVector(axis),
		Status:        store.AssetStatusActive,
	})
}

func TestProtect_RegistersAsset(t *testing.T) {
	f := newFixture()

	result, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Press portrait",
		ImageData: gradientJPEG(t, 0),
	})
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}

	if result.Asset == nil || result.Asset.ID == "" {
		t.Fatal("Protect() returned no stored asset")
	}
	if !result.FaceFound {
		t.Error("FaceFound = false, want true")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", result.Warnings)
	}
	if len(result.NearDuplicates) != 0 {
		t.Errorf("NearDuplicates = %v, want none", result.NearDuplicates)
	}

	stored, err := f.assets.GetAsset(context.Background(), result.Asset.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetAsset() = %v, %v", stored, err)
	}
	if stored.OwnerID != "owner-1" || stored.Name != "Press portrait" {
		t.Errorf("stored owner/name = %q/%q, want owner-1/Press portrait", stored.OwnerID, stored.Name)
	}
	if stored.Status != store.AssetStatusActive {
		t.Errorf("Status = %q, want %q", stored.Status, store.AssetStatusActive)
	}
	if len(stored.IdentityVector) != constants.EmbeddingDim {
		t.Errorf("IdentityVector length = %d, want %d", len(stored.IdentityVector), constants.EmbeddingDim)
	}
	if len(stored.ContentVector) != constants.EmbeddingDim {
		t.Errorf("ContentVector length = %d, want %d", len(stored.ContentVector), constants.EmbeddingDim)
	}
	if len(stored.ContentFingerprint) != 16 {
		t.Errorf("ContentFingerprint = %q, want a 16 character hash", stored.ContentFingerprint)
	}
	if f.index.Count() != 1 {
		t.Errorf("index count = %d, want 1", f.index.Count())
	}
}

func TestProtect_Validation(t *testing.T) {
	img := gradientJPEG(t, 0)
	tests := []struct {
		name string
		req  *ProtectRequest
	}{
		{"nil request", nil},
		{"missing owner", &ProtectRequest{Name: "Portrait", ImageData: img}},
		{"missing name", &ProtectRequest{OwnerID: "owner-1", ImageData: img}},
		{"missing image", &ProtectRequest{OwnerID: "owner-1", Name: "Portrait"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.service.Protect(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Protect() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestProtect_FetchesImageFromURL(t *testing.T) {
	f := newFixture()
	f.fetcher.data[portraitURL] = gradientJPEG(t, 0)

	result, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:  "owner-1",
		Name:     "Press portrait",
		ImageURL: portraitURL,
	})
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}

	if result.Asset.ImageURL != portraitURL {
		t.Errorf("ImageURL = %q, want %q", result.Asset.ImageURL, portraitURL)
	}
	if result.Asset.ContentFingerprint == "" {
		t.Error("ContentFingerprint is empty, want fingerprint of the fetched image")
	}
}

func TestProtect_FetchFailure(t *testing.T) {
	f := newFixture()

	_, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:  "owner-1",
		Name:     "Press portrait",
		ImageURL: "https://gone.example.com/missing.jpg",
	})
	if !errors.Is(err, ErrBadImage) || !strings.Contains(err.Error(), "failed to fetch image") {
		t.Fatalf("Protect() error = %v, want ErrBadImage fetch failure", err)
	}
	if f.index.Count() != 0 {
		t.Errorf("index count = %d, want 0", f.index.Count())
	}
}

func TestProtect_RejectsUndecodableImage(t *testing.T) {
	f := newFixture()

	_, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Press portrait",
		ImageData: []byte("not an image"),
	})
	if !errors.Is(err, ErrBadImage) || !strings.Contains(err.Error(), "failed to fingerprint image") {
		t.Fatalf("Protect() error = %v, want ErrBadImage fingerprint failure", err)
	}
}

func TestProtect_EmbeddingServiceDown(t *testing.T) {
	f := newFixture()
	f.embed.extractErr = fmt.Errorf("connection refused")
	f.embed.contentErr = fmt.Errorf("connection refused")

	result, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Press portrait",
		ImageData: gradientJPEG(t, 0),
	})
	if err != nil {
		t.Fatalf("Protect() error = %v, want degraded success", err)
	}

	if result.FaceFound {
		t.Error("FaceFound = true, want false")
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "embedding service unavailable") {
		t.Errorf("Warnings = %v, want one embedding warning", result.Warnings)
	}
	if len(result.Asset.IdentityVector) != 0 || len(result.Asset.ContentVector) != 0 {
		t.Error("asset has vectors, want none while the service is down")
	}
	if result.Asset.ContentFingerprint == "" {
		t.Error("ContentFingerprint is empty, want local fingerprint regardless of the service")
	}
	if f.index.Count() != 0 {
		t.Errorf("index count = %d, want 0", f.index.Count())
	}
}

func TestProtect_PartialEmbeddingFailure(t *testing.T) {
	f := newFixture()
	f.embed.contentErr = fmt.Errorf("model not loaded")

	result, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Press portrait",
		ImageData: gradientJPEG(t, 0),
	})
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}

	if !result.FaceFound {
		t.Error("FaceFound = false, want true")
	}
	want := []string{"embedding service unavailable: content embedding: model not loaded"}
	if !reflect.DeepEqual(result.Warnings, want) {
		t.Errorf("Warnings = %v, want %v", result.Warnings, want)
	}
	if len(result.Asset.IdentityVector) != constants.EmbeddingDim {
		t.Error("IdentityVector missing, want the surviving identity embedding")
	}
	if len(result.Asset.ContentVector) != 0 {
		t.Error("ContentVector set, want none after the content branch failed")
	}
	if f.index.Count() != 0 {
		t.Errorf("index count = %d, want 0", f.index.Count())
	}
}

func TestProtect_NoFaceWarns(t *testing.T) {
	f := newFixture()
	f.embed.extract = &deepface.FaceEmbedding{}

	result, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Landscape shot",
		ImageData: gradientJPEG(t, 0),
	})
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}

	if result.FaceFound {
		t.Error("FaceFound = true, want false")
	}
	want := []string{"no face detected in the image"}
	if !reflect.DeepEqual(result.Warnings, want) {
		t.Errorf("Warnings = %v, want %v", result.Warnings, want)
	}
	if len(result.Asset.ContentVector) != constants.EmbeddingDim {
		t.Error("ContentVector missing, want content indexed for faceless photos")
	}
	if f.index.Count() != 1 {
		t.Errorf("index count = %d, want 1", f.index.Count())
	}
}

func TestProtect_FlagsNearDuplicates(t *testing.T) {
	f := newFixture()
	img := gradientJPEG(t, 0)

	first, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Original",
		ImageData: img,
	})
	if err != nil {
		t.Fatalf("Protect() first error = %v", err)
	}
	if len(first.NearDuplicates) != 0 {
		t.Fatalf("first NearDuplicates = %v, want none", first.NearDuplicates)
	}

	second, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-2",
		Name:      "Copy",
		ImageData: img,
	})
	if err != nil {
		t.Fatalf("Protect() second error = %v", err)
	}

	if len(second.NearDuplicates) != 1 {
		t.Fatalf("second NearDuplicates = %v, want one", second.NearDuplicates)
	}
	if second.NearDuplicates[0].AssetID != first.Asset.ID {
		t.Errorf("near duplicate = %q, want %q", second.NearDuplicates[0].AssetID, first.Asset.ID)
	}
	if second.NearDuplicates[0].Distance > constants.NearDuplicateDistanceThreshold {
		t.Errorf("Distance = %v, want within %v", second.NearDuplicates[0].Distance, constants.NearDuplicateDistanceThreshold)
	}

	// a near duplicate is reported, never rejected
	if second.Asset.ID == "" {
		t.Error("duplicate upload was not registered")
	}
	if f.index.Count() != 2 {
		t.Errorf("index count = %d, want 2", f.index.Count())
	}
}

func TestProtect_DistinctContentHasNoDuplicates(t *testing.T) {
	f := newFixture()
	imgA := gradientJPEG(t, 0)
	imgB := gradientJPEG(t, 200)
	f.embed.contentByImage = map[string][]float32{
		string(imgA): axisVector(1),
		string(imgB): axisVector(2),
	}

	if _, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID: "owner-1", Name: "First", ImageData: imgA,
	}); err != nil {
		t.Fatalf("Protect() first error = %v", err)
	}

	second, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID: "owner-1", Name: "Second", ImageData: imgB,
	})
	if err != nil {
		t.Fatalf("Protect() second error = %v", err)
	}
	if len(second.NearDuplicates) != 0 {
		t.Errorf("NearDuplicates = %v, want none for distinct content", second.NearDuplicates)
	}
}

func TestProtect_StoreFailure(t *testing.T) {
	f := newFixture()
	f.assets.CreateError = fmt.Errorf("connection reset")

	_, err := f.service.Protect(context.Background(), &ProtectRequest{
		OwnerID:   "owner-1",
		Name:      "Press portrait",
		ImageData: gradientJPEG(t, 0),
	})
	if err == nil || !strings.Contains(err.Error(), "failed to store asset") {
		t.Fatalf("Protect() error = %v, want store failure", err)
	}
	if f.index.Count() != 0 {
		t.Errorf("index count = %d, want 0 after a failed create", f.index.Count())
	}
}

func TestSimilar(t *testing.T) {
	f := newFixture()
	f.addAsset("asset-a", 1)
	f.addAsset("asset-b", 1)
	f.addAsset("asset-c", 3)
	f.index.Add("asset-a", axisVector(1))
	f.index.Add("asset-b", axisVector(1))
	f.index.Add("asset-c", axisVector(3))

	similar, err := f.service.Similar(context.Background(), "asset-a", 2)
	if err != nil {
		t.Fatalf("Similar() error = %v", err)
	}

	if len(similar) != 2 {
		t.Fatalf("Similar() returned %d assets, want 2", len(similar))
	}
	if similar[0].AssetID != "asset-b" || similar[0].Distance != 0 {
		t.Errorf("similar[0] = %+v, want asset-b at distance 0", similar[0])
	}
	if similar[1].AssetID != "asset-c" || similar[1].Distance != 1 {
		t.Errorf("similar[1] = %+v, want asset-c at distance 1", similar[1])
	}
}

func TestSimilar_Errors(t *testing.T) {
	f := newFixture()
	f.assets.AddAsset(store.ProtectedAsset{ID: "bare", OwnerID: "owner-1", Name: "No vector"})

	tests := []struct {
		name    string
		assetID string
		wantErr error
	}{
		{"unknown asset", "ghost", ErrNotFound},
		{"asset without vector", "bare", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Similar(context.Background(), tt.assetID, 3)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Similar() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSimilar_EmptyIndex(t *testing.T) {
	f := newFixture()
	f.addAsset("asset-a", 1)

	similar, err := f.service.Similar(context.Background(), "asset-a", 3)
	if err != nil {
		t.Fatalf("Similar() error = %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("Similar() = %v, want none on an empty index", similar)
	}
}

func TestBuildIndex_FromStore(t *testing.T) {
	f := newFixture()
	f.addAsset("asset-a", 1)
	f.addAsset("asset-b", 2)
	f.assets.AddAsset(store.ProtectedAsset{ID: "asset-c", OwnerID: "owner-1", Name: "No vector"})

	if err := f.service.BuildIndex(context.Background(), ""); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if f.index.Count() != 2 {
		t.Errorf("index count = %d, want 2", f.index.Count())
	}
}

func TestBuildIndex_ListFailure(t *testing.T) {
	f := newFixture()
	f.assets.ListError = fmt.Errorf("connection reset")

	if err := f.service.BuildIndex(context.Background(), ""); err == nil {
		t.Error("BuildIndex() error = nil, want list failure")
	}
}

func TestBuildIndex_LoadsSavedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.idx")

	seed := newFixture()
	seed.addAsset("asset-a", 1)
	seed.addAsset("asset-b", 2)
	if err := seed.service.BuildIndex(context.Background(), path); err != nil {
		t.Fatalf("BuildIndex() seed error = %v", err)
	}
	if err := seed.index.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	f := newFixture()
	f.addAsset("asset-a", 1)
	f.addAsset("asset-b", 2)
	if err := f.service.BuildIndex(context.Background(), path); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if f.index.Count() != 2 {
		t.Errorf("index count = %d, want 2 after loading", f.index.Count())
	}

	ids, _, err := f.index.Search(axisVector(1), 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "asset-a" {
		t.Errorf("Search() = %v, want [asset-a]", ids)
	}
}

func TestBuildIndex_CorruptFileRebuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.idx")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt index: %v", err)
	}

	f := newFixture()
	f.addAsset("asset-a", 1)
	f.addAsset("asset-b", 2)

	if err := f.service.BuildIndex(context.Background(), path); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if f.index.Count() != 2 {
		t.Errorf("index count = %d, want 2 after rebuilding", f.index.Count())
	}
}
