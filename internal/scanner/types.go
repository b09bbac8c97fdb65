package scanner

import (
	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// ScanOptions tune a single scan run. Zero values fall back to the
// configured defaults.
type ScanOptions struct {
	MaxCandidates int  // Candidate cap requested from each discovery engine
	MaxExpansions int  // How many candidates may be expanded through exact-match search
	SkipCache     bool // Bypass the discovery cache and query the backends directly
}

// ExpandedCandidate is one deduplicated discovery candidate together with
// everything the later pipeline stages derived from it.
type ExpandedCandidate struct {
	Candidate discovery.Candidate

	// Matches are the copies found by expanding the candidate's image
	// through the exact-match backend.
	Matches []tineye.Match

	// IdentitySimilarity is the identity engine's score scaled to 0-1.
	// Unset for candidates from visual engines.
	IdentitySimilarity float64

	// VerificationEngine names the service that verified the candidate.
	// Empty when no secondary check completed.
	VerificationEngine string

	// AutoAlert marks the candidate for an owner alert once its record
	// is committed.
	AutoAlert bool
}

// PhaseDurations records how long each pipeline phase took.
type PhaseDurations struct {
	DiscoveryMs    int64
	ExpansionMs    int64
	DirectSearchMs int64
	VerificationMs int64
	PersistenceMs  int64
}

// ScanResult aggregates everything one scan run found and did. A scan never
// fails past input validation; collaborator trouble shows up in Warnings and
// the failure tallies instead.
type ScanResult struct {
	AssetID          string
	CandidateGroupID string

	// Candidates that survived dedup and the confidence gate, in
	// discovery order.
	Candidates []ExpandedCandidate

	// DirectMatches are exact copies of the asset image itself, found
	// independently of person discovery.
	DirectMatches []tineye.Match

	// PersonDiscoveryUsed reports whether at least one discovery engine
	// answered.
	PersonDiscoveryUsed bool

	ProvidersUsed         []string
	TotalFound            int
	SkippedBelowThreshold int

	RecordsCreated int
	RecordsUpdated int
	RecordsFailed  int

	AlertsSent   int
	AlertsFailed int

	Durations PhaseDurations
	Warnings  []string
}
