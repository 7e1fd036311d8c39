package embedder

import (
	"context"
	"hash/fnv"

	"github.com/cogmem/cogmem/types"
)

// Mock is a deterministic, offline Embedder for tests and local
// development. It must be explicitly configured; the HTTP provider never
// falls back to it silently (spec.md §6).
type Mock struct {
	dim int
}

// NewMock returns a Mock producing vectors of the given dimension.
func NewMock(dimension int) *Mock {
	return &Mock{dim: dimension}
}

func (m *Mock) Dimension() int { return m.dim }

// Embed hashes text into a deterministic pseudo-embedding: same text
// always yields the same vector, similar-prefix texts land near each
// other only by coincidence (this is not a real semantic embedding).
func (m *Mock) Embed(ctx context.Context, text string) (types.Vector, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make(types.Vector, m.dim)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int32(seed>>33)) / float32(1<<31)
	}
	return v, nil
}

// EmbedBatch embeds each text independently.
func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error) {
	out := make([]types.Vector, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
