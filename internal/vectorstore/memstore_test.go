package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/pkg/types"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	s := NewMemStore()
	require.NoError(t, s.EnsureCollection(context.Background(), "code", DefaultSchema(4)))
	return s
}

func vec(vals ...float32) []float32 { return vals }

func point(id string, dense []float32, payload types.Payload) Point {
	return Point{ID: id, Dense: dense, Payload: payload}
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.EnsureCollection(context.Background(), "code", DefaultSchema(4)))
}

func TestEnsureCollectionSchemaMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.EnsureCollection(context.Background(), "code", DefaultSchema(8))
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestUpsertReplacesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("a", vec(1, 0, 0, 0), types.Payload{SymbolName: "old"}),
	}))
	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("a", vec(0, 1, 0, 0), types.Payload{SymbolName: "new"}),
	}))

	n, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.QueryDense(ctx, "code", vec(0, 1, 0, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Payload.SymbolName)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	err := s.Upsert(context.Background(), "code", []Point{
		point("a", vec(1, 0), types.Payload{}),
	})
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestQueryDenseRanksByCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("exact", vec(1, 0, 0, 0), types.Payload{}),
		point("close", vec(0.9, 0.1, 0, 0), types.Payload{}),
		point("far", vec(0, 0, 1, 0), types.Payload{}),
	}))

	hits, err := s.QueryDense(ctx, "code", vec(1, 0, 0, 0), 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
	assert.Equal(t, "close", hits[1].ID)
}

func TestQueryDenseFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("a", vec(1, 0, 0, 0), types.Payload{FilePath: "a.go"}),
		point("b", vec(1, 0, 0, 0), types.Payload{FilePath: "b.go"}),
	}))

	hits, err := s.QueryDense(ctx, "code", vec(1, 0, 0, 0), 10, FilterByField("file_path", "b.go"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestQuerySparseSkipsZeroQuery(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.QuerySparse(context.Background(), "code", types.SparseVector{}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuerySparseRanksByOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sv := func(weights map[uint32]float32) types.SparseVector {
		return types.NewSparseVector(weights)
	}
	require.NoError(t, s.Upsert(ctx, "code", []Point{
		{ID: "both", Dense: vec(0, 0, 0, 1), Sparse: sv(map[uint32]float32{1: 0.7, 2: 0.7})},
		{ID: "one", Dense: vec(0, 0, 0, 1), Sparse: sv(map[uint32]float32{1: 1})},
		{ID: "none", Dense: vec(0, 0, 0, 1), Sparse: sv(map[uint32]float32{9: 1})},
	}))

	hits, err := s.QuerySparse(ctx, "code", sv(map[uint32]float32{1: 0.7, 2: 0.7}), 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2, "no shared tokens means no hit")
	assert.Equal(t, "both", hits[0].ID)
	assert.Equal(t, "one", hits[1].ID)
}

func TestDeleteByFilterRemovesFileChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("a1", vec(1, 0, 0, 0), types.Payload{FilePath: "a.go"}),
		point("a2", vec(0, 1, 0, 0), types.Payload{FilePath: "a.go"}),
		point("b1", vec(0, 0, 1, 0), types.Payload{FilePath: "b.go"}),
	}))

	require.NoError(t, s.DeleteByFilter(ctx, "code", FilterByField("file_path", "a.go")))

	n, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecommendExcludesExamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("seed", vec(1, 0, 0, 0), types.Payload{}),
		point("near", vec(0.95, 0.05, 0, 0), types.Payload{}),
		point("far", vec(0, 0, 0, 1), types.Payload{}),
	}))

	hits, err := s.Recommend(ctx, "code", []string{"seed"}, nil, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "near", hits[0].ID)
	for _, h := range hits {
		assert.NotEqual(t, "seed", h.ID)
	}
}

func TestRecommendNegativePushesAway(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "code", []Point{
		point("seed", vec(1, 0, 0, 0), types.Payload{}),
		point("avoid", vec(0, 1, 0, 0), types.Payload{}),
		point("mixed", vec(0.7, 0.7, 0, 0), types.Payload{}),
		point("pure", vec(0.9, 0, 0.1, 0), types.Payload{}),
	}))

	hits, err := s.Recommend(ctx, "code", []string{"seed"}, []string{"avoid"}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "pure", hits[0].ID)
}

func TestRecommendUnknownSeed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Recommend(context.Background(), "code", []string{"ghost"}, nil, 5, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestScrollStableOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var pts []Point
	for i := 0; i < 5; i++ {
		pts = append(pts, point(fmt.Sprintf("p%d", i), vec(1, 0, 0, 0), types.Payload{}))
	}
	require.NoError(t, s.Upsert(ctx, "code", pts))

	a, err := s.Scroll(ctx, "code", nil, 0)
	require.NoError(t, err)
	b, err := s.Scroll(ctx, "code", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 5)
}

func TestUnknownCollection(t *testing.T) {
	s := NewMemStore()
	_, err := s.Count(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
