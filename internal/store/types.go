package store

import (
	"time"
)

// Protected asset statuses.
const (
	AssetStatusActive = "active"
	AssetStatusPaused = "paused"
)

// Match record types.
const (
	MatchTypeIdentity        = "identity_match"   // identity engine found the person
	MatchTypePersonCandidate = "person_candidate" // visual engine candidate, identity unconfirmed
	MatchTypeExactCopy       = "exact_copy"       // exact-match backend, score >= threshold
	MatchTypeAlteredCopy     = "altered_copy"     // exact-match backend, modified copy
)

// Match record statuses. Only "new" is ever written by the pipeline; review
// states are owner-driven.
const (
	MatchStatusNew       = "new"
	MatchStatusReviewed  = "reviewed"
	MatchStatusDismissed = "dismissed"
)

// Alert severities.
const (
	AlertSeverityHigh   = "high"
	AlertSeverityMedium = "medium"
)

// ProtectedAsset is a photo registered for reuse monitoring.
type ProtectedAsset struct {
	ID                 string
	OwnerID            string
	Name               string
	ImageURL           string
	IdentityVector     []float32 // 512-dim face embedding, nil when no face was found
	ContentVector      []float32 // 512-dim CLIP embedding, nil until computed
	ContentFingerprint string    // 16 hex chars, empty until computed
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MatchRecord is one detected reuse of a protected asset on one source page.
// The pair (ProtectedAssetID, SourceURL) is unique; re-detections update the
// same row.
type MatchRecord struct {
	ID                 string
	ProtectedAssetID   string
	SourceURL          string
	MatchType          string
	Similarity         float64
	DiscoveryEngine    string
	VerificationEngine string // empty when the match was not verified
	ParentCandidateID  string // persisted id of the originating candidate, empty for direct matches
	CandidateGroupID   string // the scan run that produced this record
	Status             string
	CreatedAt          time.Time
	LastSeenAt         time.Time
}

// Alert notifies an owner about a qualifying match record.
type Alert struct {
	ID            string
	OwnerID       string
	MatchRecordID string
	Severity      string
	Type          string
	Message       string
	AnalysisInfo  string
	CreatedAt     time.Time
}

// UpsertOutcome reports what one match upsert did.
type UpsertOutcome struct {
	ID      string
	Created bool // true on first sighting, false when an existing row was refreshed
}
