// Package mock provides a deterministic embedder for tests and local runs
// without model files or network access.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder generates deterministic embeddings from text.
// Each token hashes to a pseudo-random unit direction and the text embeds to
// the normalized sum, so texts sharing tokens land near each other while
// disjoint texts stay near-orthogonal. Identical input always produces an
// identical vector (self-similarity 1.0).
type Embedder struct {
	dims int
}

// New creates a mock embedder. dims <= 0 defaults to 384
// (all-MiniLM-L6-v2 size).
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dims: dims}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	vec := make([]float32, m.dims)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))

		// LCG seeded by the token hash gives a stable pseudo-random
		// direction per token.
		seed := h.Sum64()
		for i := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dims
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i, v := range vec {
		vec[i] = v / n
	}
	return vec
}
