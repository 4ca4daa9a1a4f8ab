package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelhq/coderag/internal/embedder"
	"github.com/kestrelhq/coderag/internal/memory"
	"github.com/kestrelhq/coderag/internal/vectorstore"
	"github.com/kestrelhq/coderag/pkg/types"
)

const (
	DefaultTopK       = 6
	DefaultTopKMemory = 3
	DefaultLegTimeout = 5 * time.Second
)

// Request is one hybrid retrieval.
type Request struct {
	Query string

	// SessionID enables the memory leg. Empty skips it.
	SessionID string

	// Limit caps the fused result count; zero uses the engine default.
	Limit int

	// Language restricts code hits to one language, e.g. "go".
	Language string
}

// Result is a fused ranking plus a record of which retrievals ran.
type Result struct {
	Hits []types.RetrievalHit

	// Contributed lists the sources that returned at least one hit.
	Contributed []types.HitSource

	// Degraded lists sources that failed or timed out. The ranking is
	// still valid, built from the remaining sources.
	Degraded []types.HitSource
}

// Config configures an Engine.
type Config struct {
	Collection string
	TopK       int
	TopKMemory int
	Weights    Weights
	LegTimeout time.Duration
	Logger     *slog.Logger
}

// Engine runs the dense, sparse, and memory retrievals concurrently
// and fuses their rankings.
type Engine struct {
	store  vectorstore.Store
	embed  *embedder.Client
	memory *memory.Store

	collection string
	topK       int
	topKMemory int
	weights    Weights
	legTimeout time.Duration
	logger     *slog.Logger
}

// New creates an Engine. The memory store may be nil, which disables
// the memory leg entirely.
func New(store vectorstore.Store, embed *embedder.Client, mem *memory.Store, cfg Config) (*Engine, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name required")
	}
	e := &Engine{
		store:      store,
		embed:      embed,
		memory:     mem,
		collection: cfg.Collection,
		topK:       cfg.TopK,
		topKMemory: cfg.TopKMemory,
		weights:    cfg.Weights,
		legTimeout: cfg.LegTimeout,
		logger:     cfg.Logger,
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if e.topKMemory <= 0 {
		e.topKMemory = DefaultTopKMemory
	}
	if e.weights == (Weights{}) {
		e.weights = DefaultWeights()
	}
	if e.legTimeout <= 0 {
		e.legTimeout = DefaultLegTimeout
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Retrieve embeds the query once, runs every applicable retrieval
// concurrently under a per-leg deadline, and fuses the survivors. A
// failed or slow leg degrades the result instead of failing it; only
// when every leg fails does Retrieve return an error.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query text required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.topK
	}

	denseVec, err := e.embed.EmbedDenseOne(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sparseVec, err := e.embed.EmbedSparseOne(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var filter *vectorstore.Filter
	if req.Language != "" {
		filter = vectorstore.FilterByField("language", req.Language)
	}

	type legOutcome struct {
		source types.HitSource
		hits   []vectorstore.ScoredPoint
		err    error
	}

	legs := []struct {
		source types.HitSource
		run    func(context.Context) ([]vectorstore.ScoredPoint, error)
	}{
		{types.SourceDense, func(ctx context.Context) ([]vectorstore.ScoredPoint, error) {
			return e.store.QueryDense(ctx, e.collection, denseVec, limit, filter)
		}},
		{types.SourceSparse, func(ctx context.Context) ([]vectorstore.ScoredPoint, error) {
			return e.store.QuerySparse(ctx, e.collection, sparseVec, limit, filter)
		}},
	}
	if e.memory != nil && req.SessionID != "" {
		legs = append(legs, struct {
			source types.HitSource
			run    func(context.Context) ([]vectorstore.ScoredPoint, error)
		}{types.SourceMemory, func(ctx context.Context) ([]vectorstore.ScoredPoint, error) {
			return e.memory.Search(ctx, req.SessionID, denseVec, e.topKMemory)
		}})
	}

	// Legs record their own outcome and never return an error: one
	// slow or failing backend must not cancel its siblings.
	outcomes := make([]legOutcome, len(legs))
	g := new(errgroup.Group)
	for i, leg := range legs {
		g.Go(func() error {
			legCtx, cancel := context.WithTimeout(ctx, e.legTimeout)
			defer cancel()

			hits, err := leg.run(legCtx)
			outcomes[i] = legOutcome{source: leg.source, hits: hits, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{}
	var fusable []legResult
	var firstErr error
	for _, o := range outcomes {
		if o.err != nil {
			result.Degraded = append(result.Degraded, o.source)
			if firstErr == nil {
				firstErr = o.err
			}
			e.logger.Warn("retrieval degraded", "source", string(o.source), "error", o.err)
			continue
		}
		if len(o.hits) > 0 {
			result.Contributed = append(result.Contributed, o.source)
		}
		fusable = append(fusable, legResult{source: o.source, hits: o.hits})
	}

	if len(fusable) == 0 {
		if errors.Is(firstErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", types.ErrRetrievalTimeout, firstErr)
		}
		return nil, fmt.Errorf("all retrievals failed: %w", firstErr)
	}

	result.Hits = fuse(fusable, e.weights, limit)
	return result, nil
}
