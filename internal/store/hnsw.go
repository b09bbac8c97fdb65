package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-sentry/internal/constants"
	"github.com/kozaktomas/photo-sentry/internal/identity"
)

// AssetIndex is an in-memory HNSW graph over protected-asset content vectors,
// keyed by asset id. Intake uses it to spot near-duplicate uploads without a
// database round trip.
type AssetIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string]
	ids        map[string]bool
	mu         sync.RWMutex
	path       string
}

// NewAssetIndex creates a new empty asset index.
func NewAssetIndex() *AssetIndex {
	return &AssetIndex{
		ids: make(map[string]bool),
	}
}

func newAssetGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromAssets builds the index from scratch. Assets without a content
// vector are skipped.
func (x *AssetIndex) BuildFromAssets(assets []ProtectedAsset) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.savedGraph = nil
	x.ids = make(map[string]bool, len(assets))

	if len(assets) == 0 {
		x.graph = nil
		return
	}

	g := newAssetGraph()
	for i := range assets {
		a := &assets[i]
		if len(a.ContentVector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(a.ID, a.ContentVector))
		x.ids[a.ID] = true
	}
	x.graph = g
}

// Add indexes one asset's content vector. A nil vector is a no-op.
func (x *AssetIndex) Add(id string, vector []float32) {
	if len(vector) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph == nil {
		x.graph = newAssetGraph()
	}
	x.graph.Add(hnsw.MakeNode(id, vector))
	x.ids[id] = true
}

// Delete removes an asset from search results. The graph node stays behind
// because HNSW cannot truly delete; the result filter drops it.
func (x *AssetIndex) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.ids, id)
}

// Search finds the k nearest indexed assets to the query vector. It returns
// asset ids and cosine distances, nearest first.
func (x *AssetIndex) Search(query []float32, k int) ([]string, []float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if x.savedGraph != nil {
		neighbors = x.savedGraph.Search(query, k)
	} else {
		neighbors = x.graph.Search(query, k)
	}

	ids := make([]string, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))

	for _, n := range neighbors {
		if !x.ids[n.Key] {
			continue
		}
		d := 1.0
		if sim, err := identity.CosineSimilarity(query, n.Value); err == nil {
			d = 1 - sim
		}
		ids = append(ids, n.Key)
		distances = append(distances, d)
	}

	return ids, distances, nil
}

// Count returns the number of searchable assets.
func (x *AssetIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// IsEmpty reports whether any graph data is loaded.
func (x *AssetIndex) IsEmpty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph == nil && x.savedGraph == nil
}

// Save persists the index to the path set by Load or SetPath. Without a path
// it does nothing; an empty index removes any stale file.
func (x *AssetIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return nil
	}

	if x.graph == nil && x.savedGraph == nil {
		_ = os.Remove(x.path)
		return nil
	}

	f, err := os.Create(x.path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if x.savedGraph != nil {
		if err := x.savedGraph.Export(f); err != nil {
			return fmt.Errorf("exporting asset graph: %w", err)
		}
		return nil
	}
	if err := x.graph.Export(f); err != nil {
		return fmt.Errorf("exporting asset graph: %w", err)
	}
	return nil
}

// SetPath sets the file the index saves to.
func (x *AssetIndex) SetPath(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.path = path
}

// Load reads a previously saved index. A missing file is not an error; the
// caller rebuilds from the store instead. RestoreIDs must be called after a
// successful load to make the entries searchable.
func (x *AssetIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load asset index: %w", err)
	}

	x.savedGraph = saved
	return nil
}

// RestoreIDs repopulates the searchable-id set after loading from disk.
func (x *AssetIndex) RestoreIDs(assets []ProtectedAsset) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.ids = make(map[string]bool, len(assets))
	for i := range assets {
		if len(assets[i].ContentVector) > 0 {
			x.ids[assets[i].ID] = true
		}
	}
}
