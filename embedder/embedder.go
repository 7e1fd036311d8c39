// Package embedder is the Embedder interface (C1): maps text to a
// fixed-dimension vector, batchable. The core never implements an actual
// embedding model; it only consumes this interface, with an HTTP provider
// as the default and a mock provider for tests and explicitly configured
// offline use.
package embedder

import (
	"context"

	"github.com/cogmem/cogmem/types"
)

// Embedder maps text to a fixed-dimension vector. Implementations need not
// unit-normalize: all consumers compare via cosine similarity.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) (types.Vector, error)
	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error)
	// Dimension returns the fixed dimension D of vectors this embedder
	// produces.
	Dimension() int
}

// HealthChecker is implemented by embedders backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
