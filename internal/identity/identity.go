// Package identity compares fixed-length identity vectors extracted from
// detected faces. Comparisons are pure functions: invalid input is an error,
// never a degraded result.
package identity

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/photo-sentry/internal/constants"
)

var (
	// ErrEmptyVector is returned when either input vector has no components.
	ErrEmptyVector = errors.New("identity vector is empty")

	// ErrDimensionMismatch is returned when the input vectors cannot be
	// compared because their dimensions disagree.
	ErrDimensionMismatch = errors.New("identity vector dimension mismatch")
)

// Comparison is the outcome of comparing two identity vectors.
type Comparison struct {
	IsSamePerson  bool
	Distance      float64 // cosine distance, 1 - similarity
	Similarity    float64
	Confidence    float64 // how far the distance sits from the threshold, 0..1
	Band          string  // "high", "medium" or "low"
	ThresholdUsed float64
}

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [-1, 1]. An all-zero vector on either side yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// CompareFaces decides whether two identity vectors belong to the same
// person. Distance is 1 - cosine similarity; the vectors match when the
// distance stays at or below the threshold. A non-positive threshold selects
// the default. Both vectors must be 512-dimensional.
func CompareFaces(a, b []float32, threshold float64) (*Comparison, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptyVector
	}
	if len(a) != constants.EmbeddingDim || len(b) != constants.EmbeddingDim {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d and %d",
			ErrDimensionMismatch, constants.EmbeddingDim, len(a), len(b))
	}
	if threshold <= 0 {
		threshold = constants.FaceDistanceThreshold
	}

	similarity, err := CosineSimilarity(a, b)
	if err != nil {
		return nil, err
	}

	distance := 1 - similarity
	confidence := math.Min(1.0, math.Abs(distance-threshold)/threshold)

	return &Comparison{
		IsSamePerson:  distance <= threshold,
		Distance:      distance,
		Similarity:    similarity,
		Confidence:    confidence,
		Band:          confidenceBand(confidence),
		ThresholdUsed: threshold,
	}, nil
}

// confidenceBand buckets a confidence value into high, medium or low.
func confidenceBand(confidence float64) string {
	switch {
	case confidence >= constants.FaceConfidenceHigh:
		return "high"
	case confidence >= constants.FaceConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}
