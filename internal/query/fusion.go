package query

import (
	"sort"

	"github.com/kestrelhq/coderag/internal/vectorstore"
	"github.com/kestrelhq/coderag/pkg/types"
)

// Weights scales each retrieval source's contribution to the fused
// score. Memory defaults lower so past conversation informs ranking
// without drowning out code evidence.
type Weights struct {
	Dense  float64
	Sparse float64
	Memory float64
}

// DefaultWeights returns the standard fusion weights.
func DefaultWeights() Weights {
	return Weights{Dense: 1.0, Sparse: 1.0, Memory: 0.5}
}

func (w Weights) forSource(src types.HitSource) float64 {
	switch src {
	case types.SourceDense:
		return w.Dense
	case types.SourceSparse:
		return w.Sparse
	case types.SourceMemory:
		return w.Memory
	default:
		return 0
	}
}

// legResult is one retrieval's output before fusion.
type legResult struct {
	source types.HitSource
	hits   []vectorstore.ScoredPoint
}

// fuse merges per-source candidate lists into a single ranking.
//
// Scores are min-max normalized within each source first, because the
// raw scales differ: cosine similarity and sparse dot products are not
// comparable. Candidates surfaced by several sources sum their
// weighted normalized scores, so an item that is merely good in two
// rankings can outrank the single best item of either.
func fuse(legs []legResult, w Weights, limit int) []types.RetrievalHit {
	merged := make(map[string]*types.RetrievalHit)
	var order []string

	for _, leg := range legs {
		norms := normalize(leg.hits)
		weight := w.forSource(leg.source)
		for i, sp := range leg.hits {
			hit, ok := merged[sp.ID]
			if !ok {
				hit = &types.RetrievalHit{ID: sp.ID, Payload: sp.Payload}
				merged[sp.ID] = hit
				order = append(order, sp.ID)
			}
			hit.AddSource(leg.source, sp.Score)
			hit.FusedScore += weight * norms[i]
		}
	}

	out := make([]types.RetrievalHit, 0, len(merged))
	for _, id := range order {
		out = append(out, *merged[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		// Exact ties: lexical matches first, then earlier location.
		si, sj := out[i].HasSource(types.SourceSparse), out[j].HasSource(types.SourceSparse)
		if si != sj {
			return si
		}
		if out[i].Payload.StartLine != out[j].Payload.StartLine {
			return out[i].Payload.StartLine < out[j].Payload.StartLine
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalize maps scores to [0, 1] by min-max within the list. A
// single-element or constant list normalizes to all ones.
func normalize(hits []vectorstore.ScoredPoint) []float64 {
	norms := make([]float64, len(hits))
	if len(hits) == 0 {
		return norms
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	if hi == lo {
		for i := range norms {
			norms[i] = 1
		}
		return norms
	}
	for i, h := range hits {
		norms[i] = (h.Score - lo) / (hi - lo)
	}
	return norms
}
