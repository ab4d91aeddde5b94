package vecindex

import "github.com/pkg/errors"

// Flat is the exact inner-product index. Every query scans all vectors,
// which is correct and fast enough for catalogs up to ~10^4 items.
type Flat struct {
	dim     int
	ids     []string
	vectors [][]float32
	rows    map[string]int
}

// NewFlat creates an empty flat index for the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim, rows: map[string]int{}}
}

func (f *Flat) Dimension() int {
	return f.dim
}

func (f *Flat) Count() int {
	return len(f.ids)
}

// Train is a no-op; the flat index has no trainable state.
func (f *Flat) Train(vectors [][]float32) error {
	return nil
}

func (f *Flat) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != f.dim {
			return errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(v), f.dim)
		}
	}
	for i, id := range ids {
		f.rows[id] = len(f.ids) + i
	}
	f.ids = append(f.ids, ids...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

// Vector returns the stored vector for id. Rows are mapped at Add time, so
// the per-candidate lookups during ranking stay O(1).
func (f *Flat) Vector(id string) ([]float32, bool) {
	row, ok := f.rows[id]
	if !ok {
		return nil, false
	}
	return f.vectors[row], true
}

func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(f.ids) == 0 {
		return nil, ErrIndexNotReady
	}
	if len(query) != f.dim {
		return nil, errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(query), f.dim)
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	hits := make([]Hit, len(f.ids))
	for i, v := range f.vectors {
		hits[i] = Hit{ID: f.ids[i], Score: InnerProduct(query, v)}
	}
	return topK(hits, k), nil
}
