package types

import (
	"errors"
	"sort"
)

// SparseVector is a weighted token-id mapping capturing exact lexical
// similarity. Indices are sorted ascending and parallel to Values.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// NewSparseVector builds a sorted sparse vector from a token-id weight map.
func NewSparseVector(weights map[uint32]float32) SparseVector {
	if len(weights) == 0 {
		return SparseVector{}
	}

	indices := make([]uint32, 0, len(weights))
	for idx := range weights {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = weights[idx]
	}

	return SparseVector{Indices: indices, Values: values}
}

// IsZero reports whether the vector has no recognized tokens.
func (v SparseVector) IsZero() bool {
	return len(v.Indices) == 0
}

// Dot computes the sparse dot product of two sorted sparse vectors.
func (v SparseVector) Dot(other SparseVector) float32 {
	var sum float32
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			sum += v.Values[i] * other.Values[j]
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Validate checks structural integrity: parallel slices, sorted unique indices.
func (v SparseVector) Validate() error {
	if len(v.Indices) != len(v.Values) {
		return errors.New("sparse vector indices and values must be parallel")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i] <= v.Indices[i-1] {
			return errors.New("sparse vector indices must be strictly ascending")
		}
	}
	return nil
}
