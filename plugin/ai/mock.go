package ai

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbeddingService is a deterministic in-process embedding service for tests.
// Each distinct text maps to a stable unit vector; optionally it can be primed
// with fixed vectors or forced to fail.
type MockEmbeddingService struct {
	Dim     int
	Fixed   map[string][]float32
	FailAll bool
	Calls   int
}

// NewMockEmbeddingService creates a mock with the given dimension.
func NewMockEmbeddingService(dim int) *MockEmbeddingService {
	return &MockEmbeddingService{
		Dim:   dim,
		Fixed: make(map[string][]float32),
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	if m.FailAll {
		return nil, ErrEmbeddingUnavailable
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.Fixed[text]; ok {
			vectors[i] = v
			continue
		}
		vectors[i] = m.synthesize(text)
	}
	return vectors, nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.Dim
}

// synthesize produces a stable pseudo-random unit vector for a text.
func (m *MockEmbeddingService) synthesize(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, m.Dim)
	var norm float64
	for i := range v {
		// xorshift64 sequence seeded by the text hash
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		f := float64(int64(seed%2000)-1000) / 1000.0
		v[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
