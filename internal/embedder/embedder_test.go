package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/pkg/types"
)

// flakyProvider fails a fixed number of calls before succeeding.
type flakyProvider struct {
	failures  int32
	calls     int32
	dimension int
}

func (p *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= p.failures {
		return nil, errors.New("temporarily unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, p.dimension)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (p *flakyProvider) Dimension() int { return p.dimension }
func (p *flakyProvider) Name() string   { return "flaky" }
func (p *flakyProvider) Close() error   { return nil }

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	provider := &flakyProvider{failures: 2, dimension: 8}
	client, err := NewClient(provider, ClientConfig{Retry: fastRetry()})
	require.NoError(t, err)

	vecs, err := client.EmbedDense(context.Background(), []string{"func main() {}"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls))
}

func TestClientExhaustedRetriesIsEmbeddingError(t *testing.T) {
	provider := &flakyProvider{failures: 100, dimension: 8}
	client, err := NewClient(provider, ClientConfig{Retry: fastRetry()})
	require.NoError(t, err)

	_, err = client.EmbedDense(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbedding)
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls))
}

func TestClientCacheSkipsBackend(t *testing.T) {
	provider := &flakyProvider{dimension: 8}
	client, err := NewClient(provider, ClientConfig{})
	require.NoError(t, err)

	_, err = client.EmbedDense(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	before := atomic.LoadInt32(&provider.calls)

	vecs, err := client.EmbedDense(context.Background(), []string{"beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, before, atomic.LoadInt32(&provider.calls), "cached texts should not hit the backend")
}

func TestClientBatchesLargeInput(t *testing.T) {
	provider := &flakyProvider{dimension: 4}
	client, err := NewClient(provider, ClientConfig{BatchSize: 10})
	require.NoError(t, err)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}
	vecs, err := client.EmbedDense(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 25)
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls), "25 texts at batch size 10 is 3 calls")
}

func TestClientRejectsEmptyText(t *testing.T) {
	client, err := NewClient(NewLocalProvider(8), ClientConfig{})
	require.NoError(t, err)

	_, err = client.EmbedDense(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), *fastRetry(), func() (int, error) {
		calls++
		return 0, errors.New("status 401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retryWithBackoff(ctx, *fastRetry(), func() (int, error) {
		return 0, errors.New("should not matter")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(64)
	a, err := p.EmbedBatch(context.Background(), []string{"func parseConfig(path string)"})
	require.NoError(t, err)
	b, err := p.EmbedBatch(context.Background(), []string{"func parseConfig(path string)"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])
}

func TestLocalProviderSimilarTextsScoreHigher(t *testing.T) {
	p := NewLocalProvider(256)
	vecs, err := p.EmbedBatch(context.Background(), []string{
		"func parseConfig(path string) (*Config, error)",
		"func loadConfig(file string) (*Config, error)",
		"SELECT id FROM sessions WHERE expired",
	})
	require.NoError(t, err)

	related := dot(vecs[0], vecs[1])
	unrelated := dot(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
