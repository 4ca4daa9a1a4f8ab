// Package recommend answers "more like this" queries: given example
// chunk IDs, it asks the vector store for points near the positive
// examples and away from the negative ones. The examples themselves
// never appear in the results.
package recommend

import (
	"context"
	"fmt"

	"github.com/kestrelhq/coderag/internal/vectorstore"
	"github.com/kestrelhq/coderag/pkg/types"
)

const DefaultLimit = 6

// Request selects the examples and scope for one recommendation.
type Request struct {
	// Positive holds chunk IDs the results should resemble. At least
	// one is required.
	Positive []string

	// Negative holds chunk IDs to steer away from. Optional.
	Negative []string

	// Limit caps the result count; zero uses the default.
	Limit int

	// Language restricts results to one language.
	Language string

	// SameFileOnly restricts results to the file of the first positive
	// example. Useful for "related code in this file" flows.
	File string
}

// Engine runs recommendation queries against the code collection.
type Engine struct {
	store      vectorstore.Store
	collection string
}

// New creates a recommendation engine.
func New(store vectorstore.Store, collection string) (*Engine, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name required")
	}
	return &Engine{store: store, collection: collection}, nil
}

// Recommend returns chunks similar to the positive examples. Results
// carry the store's recommendation score as their fused score, so they
// can flow into the same assembly path as query hits.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]types.RetrievalHit, error) {
	if len(req.Positive) == 0 {
		return nil, fmt.Errorf("at least one positive example required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var filter *vectorstore.Filter
	switch {
	case req.Language != "" && req.File != "":
		filter = &vectorstore.Filter{Must: []vectorstore.Match{
			{Field: "language", Value: req.Language},
			{Field: "file_path", Value: req.File},
		}}
	case req.Language != "":
		filter = vectorstore.FilterByField("language", req.Language)
	case req.File != "":
		filter = vectorstore.FilterByField("file_path", req.File)
	}

	points, err := e.store.Recommend(ctx, e.collection, req.Positive, req.Negative, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}

	hits := make([]types.RetrievalHit, len(points))
	for i, p := range points {
		hit := types.RetrievalHit{ID: p.ID, FusedScore: p.Score, Payload: p.Payload}
		hit.AddSource(types.SourceDense, p.Score)
		hits[i] = hit
	}
	return hits, nil
}
