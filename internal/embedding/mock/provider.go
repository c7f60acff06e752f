// Package mock provides an embedding.Provider implementation for tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/kiranshivaraju/confsight/internal/embedding"
)

// MockProvider satisfies embedding.Provider for testing.
type MockProvider struct {
	Name_      string
	Dimension_ int
	EmbedFunc  func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Dimension() int { return m.Dimension_ }

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return DeterministicVector(text, m.Dimension_), nil
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *MockProvider) Close() error { return nil }

// NewMockProvider returns a MockProvider producing deterministic unit vectors
// derived from the input text. Identical texts always embed identically;
// different texts are very unlikely to collide.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock", Dimension_: 8}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:      "mock-failing",
		Dimension_: 8,
		EmbedFunc: func(_ context.Context, _ string) ([]float32, error) {
			return nil, err
		},
	}
}

// NewFixedProvider returns a MockProvider that serves vectors from the given
// map, so tests can place texts at exact positions in embedding space.
func NewFixedProvider(vectors map[string][]float32) *MockProvider {
	dim := 0
	for _, v := range vectors {
		dim = len(v)
		break
	}
	return &MockProvider{
		Name_:      "mock-fixed",
		Dimension_: dim,
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if vec, ok := vectors[text]; ok {
				return vec, nil
			}
			return DeterministicVector(text, dim), nil
		},
	}
}

// DeterministicVector hashes text into a unit vector of the given dimension.
func DeterministicVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 8
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		bits := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float64(bits%2000)/1000.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Compile-time check that MockProvider implements embedding.Provider.
var _ embedding.Provider = (*MockProvider)(nil)
