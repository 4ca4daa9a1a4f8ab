package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrelhq/coderag/pkg/types"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Batch and retry configuration
const (
	DefaultBatchSize = 64
	MaxBatchSize     = 128

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	DefaultCacheSize = 10000
)

// DenseProvider generates fixed-length semantic embeddings. Providers
// are expected to handle one batch per call; the Client splits larger
// inputs and adds retry and caching on top.
type DenseProvider interface {
	// EmbedBatch embeds up to MaxBatchSize texts in one backend call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Name returns the provider name
	Name() string

	// Close releases any resources held by the provider
	Close() error
}

// Client is the embedding boundary used by the rest of the engine: it
// produces the dense vector from the configured provider and the sparse
// vector from the local lexical encoder, with retry, batching, and an
// LRU cache keyed by content hash.
type Client struct {
	provider DenseProvider
	sparse   *SparseEncoder
	cache    *lru.Cache[string, []float32]
	batch    int
	retry    RetryConfig
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BatchSize int
	CacheSize int
	Retry     *RetryConfig
}

// NewClient wraps a dense provider with batching, retry, and caching.
func NewClient(provider DenseProvider, cfg ClientConfig) (*Client, error) {
	if provider == nil {
		return nil, ErrNoProviderEnabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if batch > MaxBatchSize {
		batch = MaxBatchSize
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}

	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &Client{
		provider: provider,
		sparse:   NewSparseEncoder(),
		cache:    cache,
		batch:    batch,
		retry:    retry,
	}, nil
}

// Dimension returns the dense embedding dimension.
func (c *Client) Dimension() int {
	return c.provider.Dimension()
}

// Provider returns the dense provider name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// EmbedDense embeds texts, batching backend calls and reusing cached
// vectors for previously seen content. Transient failures retry with
// bounded exponential backoff; exhausted retries surface as
// types.ErrEmbedding so callers can skip the affected chunks without
// failing the run.
func (c *Client) EmbedDense(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	out := make([][]float32, len(texts))

	// Pull cache hits first; only misses go to the backend.
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if vec, ok := c.cacheGet(t); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	for start := 0; start < len(missTexts); start += c.batch {
		end := min(start+c.batch, len(missTexts))
		batch := missTexts[start:end]

		vecs, err := retryWithBackoff(ctx, c.retry, func() ([][]float32, error) {
			return c.provider.EmbedBatch(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s after %d attempts: %v",
				types.ErrEmbedding, c.provider.Name(), c.retry.MaxRetries, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(batch))
		}

		for i, vec := range vecs {
			idx := missIdx[start+i]
			out[idx] = vec
			c.cacheSet(texts[idx], vec)
		}
	}

	return out, nil
}

// EmbedDenseOne is a convenience wrapper for single-text callers such
// as query embedding and memory append.
func (c *Client) EmbedDenseOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDense(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedSparse produces lexical sparse vectors. The encoder is local and
// deterministic, so there is no retry or caching involved.
func (c *Client) EmbedSparse(ctx context.Context, texts []string) ([]types.SparseVector, error) {
	out := make([]types.SparseVector, len(texts))
	for i, t := range texts {
		out[i] = c.sparse.Encode(t)
	}
	return out, nil
}

// EmbedSparseOne encodes a single text.
func (c *Client) EmbedSparseOne(ctx context.Context, text string) (types.SparseVector, error) {
	return c.sparse.Encode(text), nil
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

func (c *Client) cacheGet(text string) ([]float32, bool) {
	vec, ok := c.cache.Get(ComputeHash(text))
	if !ok {
		return nil, false
	}
	// Copy so caller mutations never pollute the cache.
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, true
}

func (c *Client) cacheSet(text string, vec []float32) {
	c.cache.Add(ComputeHash(text), vec)
}

// ComputeHash computes the SHA-256 hash of text for caching.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
