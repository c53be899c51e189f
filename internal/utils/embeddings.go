package utils

import (
	"errors"
	"math"
)

var (
	ErrEmptyVector       = errors.New("vectors cannot be empty")
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Accumulation is done in float64; a zero-magnitude vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
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

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
