// Package vecindex implements the vector indexes behind catalog retrieval:
// an exact flat inner-product index and a clustered (inverted-file) index
// for larger catalogs. Vectors are expected to be L2-normalized, making
// inner product equivalent to cosine similarity.
package vecindex

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrIndexNotReady reports that the index is untrained, empty, or its
	// artifacts are missing. Retrieval must be skipped upstream.
	ErrIndexNotReady = errors.New("vector index not ready")
	// ErrIndexCorrupt reports unreadable or inconsistent index artifacts.
	// Fatal; the index must be rebuilt.
	ErrIndexCorrupt = errors.New("vector index corrupt")
	// ErrDimensionMismatch reports a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Hit is a single search result: the entry ID and its inner-product score.
type Hit struct {
	ID    string
	Score float32
}

// Index is the nearest-neighbor search contract shared by the flat and
// clustered variants.
type Index interface {
	// Dimension returns the vector dimension.
	Dimension() int

	// Count returns the number of indexed vectors.
	Count() int

	// Train fits index-specific state (cluster centroids). The flat index
	// needs no training. A clustered index must be trained before Add.
	Train(vectors [][]float32) error

	// Add appends vectors in row order. ids[i] labels vectors[i].
	Add(ids []string, vectors [][]float32) error

	// Search returns the top-k entries by inner product, score descending,
	// equal scores broken by ascending ID for reproducibility.
	Search(query []float32, k int) ([]Hit, error)
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged; it scores zero against everything.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// InnerProduct computes the dot product of two equal-length vectors.
func InnerProduct(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// topK sorts hits by score descending with ID-ascending tiebreak and
// truncates to k.
func topK(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
