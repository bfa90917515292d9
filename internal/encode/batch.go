package encode

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Batch holds Count feature vectors of width Dim in one row-major slab.
// Row i corresponds to input text i.
type Batch struct {
	Count int
	Dim   int
	Data  []float32
}

// NewBatch allocates a zeroed Count x Dim batch.
func NewBatch(count, dim int) Batch {
	return Batch{Count: count, Dim: dim, Data: make([]float32, count*dim)}
}

// Row returns the vector for input i. The slice aliases the batch storage.
func (b Batch) Row(i int) []float32 {
	return b.Data[i*b.Dim : (i+1)*b.Dim : (i+1)*b.Dim]
}

// Equal reports whether both batches have the same shape and bit-identical
// components.
func (b Batch) Equal(o Batch) bool {
	if b.Count != o.Count || b.Dim != o.Dim || len(b.Data) != len(o.Data) {
		return false
	}
	for i := range b.Data {
		if math.Float32bits(b.Data[i]) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// FirstMismatch returns the first (row, column) where b and o differ, or
// (-1, -1) when they are equal. Shape mismatches report row -1, column 0.
func (b Batch) FirstMismatch(o Batch) (int, int) {
	if b.Count != o.Count || b.Dim != o.Dim {
		return -1, 0
	}
	for i := range b.Data {
		if math.Float32bits(b.Data[i]) != math.Float32bits(o.Data[i]) {
			return i / b.Dim, i % b.Dim
		}
	}
	return -1, -1
}

// Stats describes how sparse a batch is.
type Stats struct {
	Count      int     `json:"count"`
	Dim        int     `json:"dim"`
	Active     int     `json:"active"`
	EmptyRows  int     `json:"empty_rows"`
	MeanActive float64 `json:"mean_active"`
	Density    float64 `json:"density"`
	MaxActive  int     `json:"max_active"`
}

// Stats computes the number of set components per row.
func (b Batch) Stats() Stats {
	s := Stats{Count: b.Count, Dim: b.Dim}
	if b.Count == 0 || b.Dim == 0 {
		s.EmptyRows = b.Count
		return s
	}
	for i := 0; i < b.Count; i++ {
		active := int(vek32.Sum(b.Row(i)))
		s.Active += active
		if active == 0 {
			s.EmptyRows++
		}
		if active > s.MaxActive {
			s.MaxActive = active
		}
	}
	s.MeanActive = float64(s.Active) / float64(b.Count)
	s.Density = float64(s.Active) / float64(b.Count*b.Dim)
	return s
}
