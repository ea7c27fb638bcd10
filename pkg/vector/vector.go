// Package vector provides the similarity math used to rank stored embeddings.
package vector

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
//
// If either vector has zero magnitude the score is 0, so a degraded
// (all-zero) query embedding ranks every document equally instead of
// producing NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Zero returns an all-zero vector of the given dimension.
func Zero(dimensions int) []float32 {
	if dimensions < 0 {
		dimensions = 0
	}
	return make([]float32, dimensions)
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
