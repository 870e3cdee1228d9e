// Package vecmath implements the fixed-dimension vector operations used for
// speaker matching.
//
// All functions operate on float32 vectors and accumulate in float64.
package vecmath

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon is added to each norm so an all-zero vector never divides by zero.
const Epsilon = 1e-8

var (
	ErrDimensionMismatch = errors.New("vecmath: dimension mismatch")
	ErrEmptyInput        = errors.New("vecmath: empty input")
	ErrNonFinite         = errors.New("vecmath: non-finite component")
)

// CheckDimension returns ErrDimensionMismatch unless len(v) == dim.
func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	return nil
}

// CheckFinite returns ErrNonFinite if any component is NaN or ±Inf.
func CheckFinite(v []float32) error {
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d is %v", ErrNonFinite, i, x)
		}
	}
	return nil
}

func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / ((|a|+eps) * (|b|+eps)).
// The result is not clamped to [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	return dot / ((Norm(a) + Epsilon) * (Norm(b) + Epsilon)), nil
}

// Mean returns the elementwise arithmetic mean of vectors.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyInput
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, x := range v {
			sums[j] += float64(x)
		}
	}
	n := float64(len(vectors))
	out := make([]float32, dim)
	for j, s := range sums {
		out[j] = float32(s / n)
	}
	return out, nil
}
