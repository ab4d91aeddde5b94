package vecindex

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestFlatSearchOrdering(t *testing.T) {
	idx := NewFlat(2)
	require.NoError(t, idx.Add(
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0},
			{0, 1},
			{0.7071, 0.7071},
		},
	))

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.Equal(t, "b", hits[2].ID)
}

func TestFlatTieBreakByID(t *testing.T) {
	idx := NewFlat(2)
	// Identical vectors: equal scores for any query.
	require.NoError(t, idx.Add(
		[]string{"zeta", "alpha", "mid"},
		[][]float32{
			{1, 0},
			{1, 0},
			{1, 0},
		},
	))

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestFlatErrors(t *testing.T) {
	idx := NewFlat(2)

	_, err := idx.Search([]float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrIndexNotReady)

	require.NoError(t, idx.Add([]string{"a"}, [][]float32{{1, 0}}))

	_, err = idx.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = idx.Add([]string{"b"}, [][]float32{{1, 0, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatKLargerThanCount(t *testing.T) {
	idx := NewFlat(2)
	require.NoError(t, idx.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	hits, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestVectorLookup(t *testing.T) {
	flat := NewFlat(2)
	require.NoError(t, flat.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	// A second batch must keep row mapping consistent.
	require.NoError(t, flat.Add([]string{"c"}, [][]float32{{0.6, 0.8}}))

	v, ok := flat.Vector("c")
	require.True(t, ok)
	assert.Equal(t, []float32{0.6, 0.8}, v)
	v, ok = flat.Vector("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, v)
	_, ok = flat.Vector("missing")
	assert.False(t, ok)

	ids, vectors := clusteredTestSet(40)
	ivf, err := NewIVF(2, 4)
	require.NoError(t, err)
	require.NoError(t, ivf.Train(vectors))
	require.NoError(t, ivf.Add(ids, vectors))

	v, ok = ivf.Vector(ids[17])
	require.True(t, ok)
	assert.Equal(t, vectors[17], v)
	_, ok = ivf.Vector("missing")
	assert.False(t, ok)
}

func TestNlistHeuristics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(int) int
		n    int
		want int
	}{
		{"drug small catalog floors at 10", DrugNlist, 30, 10},
		{"drug mid catalog", DrugNlist, 500, 50},
		{"drug large catalog caps at 100", DrugNlist, 5000, 100},
		{"condition small catalog floors at 5", ConditionNlist, 40, 5},
		{"condition mid catalog", ConditionNlist, 600, 30},
		{"condition large catalog caps at 50", ConditionNlist, 2000, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.n))
		})
	}
}

func TestIVFLifecycle(t *testing.T) {
	idx, err := NewIVF(2, 2)
	require.NoError(t, err)

	// Add before train is rejected.
	err = idx.Add([]string{"a"}, [][]float32{{1, 0}})
	assert.ErrorIs(t, err, ErrIndexNotReady)

	// Search before populate is rejected.
	_, err = idx.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrIndexNotReady)

	// Training needs at least nlist vectors.
	err = idx.Train([][]float32{{1, 0}})
	assert.Error(t, err)

	training := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}, {0.1, 0.9}}
	for _, v := range training {
		Normalize(v)
	}
	require.NoError(t, idx.Train(training))

	// Double training is rejected.
	assert.Error(t, idx.Train(training))

	require.NoError(t, idx.Add([]string{"a", "b", "c", "d"}, training))

	hits, err := idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
}

// clusteredTestSet builds a deterministic set of unit vectors spread around
// the circle, large enough to train an IVF index.
func clusteredTestSet(n int) ([]string, [][]float32) {
	ids := make([]string, n)
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		ids[i] = fmt.Sprintf("entry-%03d", i)
		vectors[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
	}
	return ids, vectors
}

func TestIVFParityWithFlatWhenExhaustive(t *testing.T) {
	ids, vectors := clusteredTestSet(200)

	flat := NewFlat(2)
	require.NoError(t, flat.Add(ids, vectors))

	ivf, err := NewIVF(2, 10)
	require.NoError(t, err)
	require.NoError(t, ivf.Train(vectors))
	require.NoError(t, ivf.Add(ids, vectors))
	ivf.SetNprobe(ivf.Nlist()) // exhaustive

	queries := [][]float32{
		{1, 0},
		{0.7071, 0.7071},
		{-0.5, 0.866},
	}
	for _, q := range queries {
		flatHits, err := flat.Search(q, 5)
		require.NoError(t, err)
		ivfHits, err := ivf.Search(q, 5)
		require.NoError(t, err)

		require.Len(t, ivfHits, len(flatHits))
		for i := range flatHits {
			assert.Equal(t, flatHits[i].ID, ivfHits[i].ID)
			assert.InDelta(t, float64(flatHits[i].Score), float64(ivfHits[i].Score), 1e-5)
		}
	}
}

func TestIVFNprobeCappedAtNlist(t *testing.T) {
	ivf, err := NewIVF(2, 4)
	require.NoError(t, err)
	ivf.SetNprobe(100)
	assert.Equal(t, 4, ivf.Nprobe())
	ivf.SetNprobe(0)
	assert.Equal(t, 1, ivf.Nprobe())
}

func TestIVFDeterministicTraining(t *testing.T) {
	ids, vectors := clusteredTestSet(120)

	build := func() []Hit {
		ivf, err := NewIVF(2, 6)
		require.NoError(t, err)
		require.NoError(t, ivf.Train(vectors))
		require.NoError(t, ivf.Add(ids, vectors))
		hits, err := ivf.Search([]float32{0.6, 0.8}, 10)
		require.NoError(t, err)
		return hits
	}

	assert.Equal(t, build(), build())
}
