package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// LocalProvider generates dense embeddings without any external
// service by feature-hashing tokens into a fixed-dimension space.
// Each token lands in a few signed buckets derived from its hash, so
// texts sharing vocabulary produce nearby vectors while the whole
// pipeline stays deterministic and offline. Quality is well below a
// learned model; it exists so indexing, tests, and air-gapped setups
// work with no API key.
type LocalProvider struct {
	dimension int
	tokenizer *SparseEncoder
}

// Buckets each token contributes to.
const localHashProjections = 4

// NewLocalProvider creates a hashing-based local provider.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalProvider{
		dimension: dimension,
		tokenizer: NewSparseEncoder(),
	}
}

// EmbedBatch embeds texts locally. It never fails and ignores ctx
// beyond the interface contract.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *LocalProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)

	counts := make(map[string]float64)
	for _, tok := range p.tokenizer.Tokenize(text) {
		counts[tok]++
	}
	if len(counts) == 0 {
		// Arbitrary but fixed direction for empty text.
		vec[0] = 1
		return vec
	}

	for tok, tf := range counts {
		w := 1.0 + math.Log(tf)
		h := fnv.New64a()
		h.Write([]byte(tok))
		seed := h.Sum64()
		for j := 0; j < localHashProjections; j++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			idx := int(seed % uint64(p.dimension))
			sign := float32(1)
			if seed&(1<<63) != 0 {
				sign = -1
			}
			vec[idx] += sign * float32(w)
		}
	}

	return l2Normalize(vec)
}

// Dimension returns the embedding dimension.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// Name returns the provider name.
func (p *LocalProvider) Name() string {
	return "local"
}

// Close is a no-op.
func (p *LocalProvider) Close() error {
	return nil
}
