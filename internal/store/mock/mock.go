// Package mock provides mock implementations of store interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/store"
)

// MockAssetStore is a mock implementation of store.AssetStore
type MockAssetStore struct {
	mu     sync.RWMutex
	assets map[string]*store.ProtectedAsset
	order  []string

	assetCounter int

	// Track calls
	UpdateVectorsCalls []UpdateVectorsCall

	// Error injection
	CreateError        error
	GetError           error
	ListError          error
	UpdateVectorsError error
}

// UpdateVectorsCall tracks an UpdateAssetVectors call
type UpdateVectorsCall struct {
	ID          string
	Identity    []float32
	Content     []float32
	Fingerprint string
}

// NewMockAssetStore creates a new mock asset store
func NewMockAssetStore() *MockAssetStore {
	return &MockAssetStore{
		assets: make(map[string]*store.ProtectedAsset),
	}
}

// AddAsset adds an asset to the mock store
func (m *MockAssetStore) AddAsset(asset store.ProtectedAsset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset.Status == "" {
		asset.Status = store.AssetStatusActive
	}
	if _, ok := m.assets[asset.ID]; !ok {
		m.order = append(m.order, asset.ID)
	}
	m.assets[asset.ID] = &asset
}

// CreateAsset stores a new protected asset
func (m *MockAssetStore) CreateAsset(ctx context.Context, asset *store.ProtectedAsset) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset.ID == "" {
		m.assetCounter++
		asset.ID = fmt.Sprintf("asset-%d", m.assetCounter)
	}
	if asset.Status == "" {
		asset.Status = store.AssetStatusActive
	}
	now := time.Now()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	stored := *asset
	m.order = append(m.order, asset.ID)
	m.assets[asset.ID] = &stored
	return nil
}

// GetAsset retrieves an asset by id, returns nil if not found
func (m *MockAssetStore) GetAsset(ctx context.Context, id string) (*store.ProtectedAsset, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	copied := *asset
	return &copied, nil
}

// ListAssets returns assets filtered by status; an empty status returns all
func (m *MockAssetStore) ListAssets(ctx context.Context, status string) ([]store.ProtectedAsset, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.ProtectedAsset
	for _, id := range m.order {
		asset := m.assets[id]
		if status == "" || asset.Status == status {
			result = append(result, *asset)
		}
	}
	return result, nil
}

// UpdateAssetVectors refreshes the stored vectors and fingerprint
func (m *MockAssetStore) UpdateAssetVectors(ctx context.Context, id string, identity, content []float32, fingerprint string) error {
	if m.UpdateVectorsError != nil {
		return m.UpdateVectorsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateVectorsCalls = append(m.UpdateVectorsCalls, UpdateVectorsCall{
		ID:          id,
		Identity:    identity,
		Content:     content,
		Fingerprint: fingerprint,
	})
	asset, ok := m.assets[id]
	if !ok {
		return fmt.Errorf("asset %s not found", id)
	}
	if identity != nil {
		asset.IdentityVector = identity
	}
	if content != nil {
		asset.ContentVector = content
	}
	if fingerprint != "" {
		asset.ContentFingerprint = fingerprint
	}
	asset.UpdatedAt = time.Now()
	return nil
}

// MockMatchStore is a mock implementation of store.MatchStore. Writes made
// through InScanTx land in the store only when the callback returns nil,
// mirroring the commit/rollback behavior of the real transaction.
type MockMatchStore struct {
	mu      sync.RWMutex
	records map[string]*store.MatchRecord // keyed by (asset id, source url)
	order   []string

	matchCounter int

	// Track calls
	UpsertCalls []store.MatchRecord

	// Error injection
	InScanTxError error
	GetError      error
	ListError     error
	CountError    error
	UpsertErrors  map[string]error // keyed by source url, fails that one upsert
}

// NewMockMatchStore creates a new mock match store
func NewMockMatchStore() *MockMatchStore {
	return &MockMatchStore{
		records:      make(map[string]*store.MatchRecord),
		UpsertErrors: make(map[string]error),
	}
}

func matchKey(assetID, sourceURL string) string {
	return assetID + "|" + sourceURL
}

// AddMatch adds a match record to the mock store
func (m *MockMatchStore) AddMatch(record store.MatchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := matchKey(record.ProtectedAssetID, record.SourceURL)
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	m.records[key] = &record
}

// Records returns all stored match records in insertion order
func (m *MockMatchStore) Records() []store.MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.MatchRecord
	for _, key := range m.order {
		result = append(result, *m.records[key])
	}
	return result
}

// InScanTx runs fn against a staged view and commits it when fn returns nil
func (m *MockMatchStore) InScanTx(ctx context.Context, timeout time.Duration, fn func(store.ScanTx) error) error {
	if m.InScanTxError != nil {
		return m.InScanTxError
	}

	tx := &MockScanTx{
		parent: m,
		staged: make(map[string]*store.MatchRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range tx.stagedOrder {
		if _, ok := m.records[key]; !ok {
			m.order = append(m.order, key)
		}
		m.records[key] = tx.staged[key]
	}
	return nil
}

// GetMatch retrieves a match record by id, returns nil if not found
func (m *MockMatchStore) GetMatch(ctx context.Context, id string) (*store.MatchRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if record.ID == id {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

// ListMatchesByAsset returns all match records for one asset, newest first
func (m *MockMatchStore) ListMatchesByAsset(ctx context.Context, assetID string) ([]store.MatchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.MatchRecord
	for _, key := range m.order {
		if m.records[key].ProtectedAssetID == assetID {
			result = append(result, *m.records[key])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastSeenAt.After(result[j].LastSeenAt)
	})
	return result, nil
}

// ListMatchesByGroup returns the records written by one scan run
func (m *MockMatchStore) ListMatchesByGroup(ctx context.Context, groupID string) ([]store.MatchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.MatchRecord
	for _, key := range m.order {
		if m.records[key].CandidateGroupID == groupID {
			result = append(result, *m.records[key])
		}
	}
	return result, nil
}

// CountMatches returns the total number of match records
func (m *MockMatchStore) CountMatches(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// MockScanTx is the staged write surface handed to InScanTx callbacks
type MockScanTx struct {
	parent      *MockMatchStore
	staged      map[string]*store.MatchRecord
	stagedOrder []string
}

// UpsertMatch creates or refreshes the staged record for (asset, source url)
func (tx *MockScanTx) UpsertMatch(ctx context.Context, record *store.MatchRecord) (*store.UpsertOutcome, error) {
	tx.parent.mu.Lock()
	if err := tx.parent.UpsertErrors[record.SourceURL]; err != nil {
		tx.parent.mu.Unlock()
		return nil, err
	}
	tx.parent.UpsertCalls = append(tx.parent.UpsertCalls, *record)
	tx.parent.mu.Unlock()

	key := matchKey(record.ProtectedAssetID, record.SourceURL)

	existing, ok := tx.staged[key]
	if !ok {
		tx.parent.mu.RLock()
		if committed, found := tx.parent.records[key]; found {
			copied := *committed
			existing = &copied
			ok = true
		}
		tx.parent.mu.RUnlock()
		if ok {
			tx.staged[key] = existing
			tx.stagedOrder = append(tx.stagedOrder, key)
		}
	}

	if ok {
		existing.LastSeenAt = time.Now()
		existing.Similarity = record.Similarity
		existing.VerificationEngine = record.VerificationEngine
		record.ID = existing.ID
		return &store.UpsertOutcome{ID: existing.ID, Created: false}, nil
	}

	stored := *record
	if stored.ID == "" {
		tx.parent.mu.Lock()
		tx.parent.matchCounter++
		stored.ID = fmt.Sprintf("match-%d", tx.parent.matchCounter)
		tx.parent.mu.Unlock()
	}
	if stored.Status == "" {
		stored.Status = store.MatchStatusNew
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.LastSeenAt = now
	tx.staged[key] = &stored
	tx.stagedOrder = append(tx.stagedOrder, key)
	record.ID = stored.ID
	return &store.UpsertOutcome{ID: stored.ID, Created: true}, nil
}

// MockAlertStore is a mock implementation of store.AlertStore
type MockAlertStore struct {
	mu     sync.RWMutex
	alerts []store.Alert

	alertCounter int

	// Error injection
	CreateAlertError error
	ListAlertsError  error
}

// NewMockAlertStore creates a new mock alert store
func NewMockAlertStore() *MockAlertStore {
	return &MockAlertStore{}
}

// Alerts returns all stored alerts in creation order
func (m *MockAlertStore) Alerts() []store.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]store.Alert, len(m.alerts))
	copy(result, m.alerts)
	return result
}

// CreateAlert stores a new alert
func (m *MockAlertStore) CreateAlert(ctx context.Context, alert *store.Alert) error {
	if m.CreateAlertError != nil {
		return m.CreateAlertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == "" {
		m.alertCounter++
		alert.ID = fmt.Sprintf("alert-%d", m.alertCounter)
	}
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, *alert)
	return nil
}

// ListAlertsByOwner returns all alerts for one owner, newest first
func (m *MockAlertStore) ListAlertsByOwner(ctx context.Context, ownerID string) ([]store.Alert, error) {
	if m.ListAlertsError != nil {
		return nil, m.ListAlertsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.Alert
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if m.alerts[i].OwnerID == ownerID {
			result = append(result, m.alerts[i])
		}
	}
	return result, nil
}

// Verify interface compliance
var _ store.AssetStore = (*MockAssetStore)(nil)
var _ store.MatchStore = (*MockMatchStore)(nil)
var _ store.ScanTx = (*MockScanTx)(nil)
var _ store.AlertStore = (*MockAlertStore)(nil)
