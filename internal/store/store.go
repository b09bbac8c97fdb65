// Package store defines the persistence interfaces for protected assets,
// match records and alerts, plus the in-memory vector index over asset
// content embeddings. PostgreSQL implementations live in store/postgres;
// hand-written test doubles live in store/mock.
package store

import (
	"context"
	"time"
)

// AssetStore provides access to protected assets.
type AssetStore interface {
	// CreateAsset stores a new protected asset. A missing ID is generated;
	// ID, CreatedAt and UpdatedAt are written back into the struct.
	CreateAsset(ctx context.Context, asset *ProtectedAsset) error
	// GetAsset retrieves an asset by id, returns nil if not found
	GetAsset(ctx context.Context, id string) (*ProtectedAsset, error)
	// ListAssets returns assets filtered by status; an empty status returns all
	ListAssets(ctx context.Context, status string) ([]ProtectedAsset, error)
	// UpdateAssetVectors refreshes the stored vectors and fingerprint.
	// Nil vectors and an empty fingerprint leave the stored values untouched.
	UpdateAssetVectors(ctx context.Context, id string, identity, content []float32, fingerprint string) error
}

// ScanTx is the write surface available inside one scan-run transaction.
type ScanTx interface {
	// UpsertMatch creates or refreshes the record for (protected_asset_id,
	// source_url). First sighting writes all fields with status "new"; later
	// sightings advance last_seen_at and the verification-derived fields
	// only. Each upsert is isolated so one failure does not poison the
	// surrounding transaction.
	UpsertMatch(ctx context.Context, record *MatchRecord) (*UpsertOutcome, error)
}

// MatchStore provides access to match records.
type MatchStore interface {
	// InScanTx runs fn inside a single transaction with the given timeout.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InScanTx(ctx context.Context, timeout time.Duration, fn func(ScanTx) error) error
	// GetMatch retrieves a match record by id, returns nil if not found
	GetMatch(ctx context.Context, id string) (*MatchRecord, error)
	// ListMatchesByAsset returns all match records for one asset, newest first
	ListMatchesByAsset(ctx context.Context, assetID string) ([]MatchRecord, error)
	// ListMatchesByGroup returns the records written by one scan run
	ListMatchesByGroup(ctx context.Context, groupID string) ([]MatchRecord, error)
	// CountMatches returns the total number of match records
	CountMatches(ctx context.Context) (int, error)
}

// AlertStore provides access to alerts.
type AlertStore interface {
	// CreateAlert stores a new alert. A missing ID is generated; ID and
	// CreatedAt are written back into the struct.
	CreateAlert(ctx context.Context, alert *Alert) error
	// ListAlertsByOwner returns all alerts for one owner, newest first
	ListAlertsByOwner(ctx context.Context, ownerID string) ([]Alert, error)
}
