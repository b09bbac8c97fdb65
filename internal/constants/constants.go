// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Vector constants
const (
	// EmbeddingDim is the dimensionality of identity and content vectors
	EmbeddingDim = 512
)

// Identity comparison constants
const (
	// FaceDistanceThreshold is the maximum cosine distance for two identity
	// vectors to count as the same person
	FaceDistanceThreshold = 0.68

	// FaceConfidenceHigh is the minimum normalized distance-from-threshold
	// for a "high" confidence band
	FaceConfidenceHigh = 0.5

	// FaceConfidenceMedium is the minimum normalized distance-from-threshold
	// for a "medium" confidence band
	FaceConfidenceMedium = 0.2
)

// Content comparison constants
const (
	// ContentSimilarityThreshold is the minimum cosine similarity between
	// content vectors for a page-level or loose match to survive verification
	ContentSimilarityThreshold = 0.8

	// FingerprintBits is the size of a perceptual content fingerprint
	FingerprintBits = 64

	// HammingLikelySameThreshold is the maximum Hamming distance between two
	// fingerprints to consider the images likely the same
	HammingLikelySameThreshold = 10
)

// Exact-match constants
const (
	// ExactCopyScoreThreshold splits expansion results into exact copies
	// (score at or above) and altered copies (below)
	ExactCopyScoreThreshold = 80

	// IdentityAlertScoreThreshold is the minimum identity-engine score for a
	// candidate to alert without further verification
	IdentityAlertScoreThreshold = 80
)

// Intake constants
const (
	// NearDuplicateDistanceThreshold is the maximum cosine distance between
	// content vectors for two protected assets to count as near-duplicates
	NearDuplicateDistanceThreshold = 0.10

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920
)

// Vector index constants
const (
	// HNSWMaxNeighbors is the max neighbors (M) parameter of the in-memory
	// asset index graph
	HNSWMaxNeighbors = 16
)
