package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kestrelhq/coderag/pkg/types"
)

// MemStore is an in-memory Store with exact scans. It implements the
// same contract as the Qdrant client, including schema checking and
// native recommend, and is the backend of choice for tests and for
// indexing small repos without a running service.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	schema CollectionSchema
	points map[string]Point
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{collections: make(map[string]*memCollection)}
}

func (s *MemStore) EnsureCollection(ctx context.Context, name string, schema CollectionSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.schema != schema {
			return fmt.Errorf("%w: collection %q has dimension %d distance %q, want %d %q",
				types.ErrSchemaMismatch, name,
				c.schema.DenseDimension, c.schema.Distance,
				schema.DenseDimension, schema.Distance)
		}
		return nil
	}

	s.collections[name] = &memCollection{
		schema: schema,
		points: make(map[string]Point),
	}
	return nil
}

func (s *MemStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *MemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := p.Validate(c.schema.DenseDimension); err != nil {
			return err
		}
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (s *MemStore) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for id, p := range c.points {
		if matches(p.Payload, filter) {
			delete(c.points, id)
		}
	}
	return nil
}

func (s *MemStore) QueryDense(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.schema.DenseDimension {
		return nil, fmt.Errorf("%w: query vector has %d dims, collection expects %d",
			ErrInvalidPoint, len(vector), c.schema.DenseDimension)
	}

	var hits []ScoredPoint
	for _, p := range c.points {
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, ScoredPoint{
			ID:      p.ID,
			Score:   cosine(vector, p.Dense),
			Payload: p.Payload,
		})
	}
	return topK(hits, limit), nil
}

func (s *MemStore) QuerySparse(ctx context.Context, collection string, vector types.SparseVector, limit int, filter *Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if vector.IsZero() {
		return nil, nil
	}

	var hits []ScoredPoint
	for _, p := range c.points {
		if p.Sparse.IsZero() || !matches(p.Payload, filter) {
			continue
		}
		score := float64(vector.Dot(p.Sparse))
		if score <= 0 {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}
	return topK(hits, limit), nil
}

func (s *MemStore) Recommend(ctx context.Context, collection string, positive, negative []string, limit int, filter *Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(positive) == 0 {
		return nil, fmt.Errorf("%w: recommend needs at least one positive example", ErrInvalidPoint)
	}

	target := make([]float32, c.schema.DenseDimension)
	if err := accumulateMean(c, positive, target, 1); err != nil {
		return nil, err
	}
	if len(negative) > 0 {
		if err := accumulateMean(c, negative, target, -1); err != nil {
			return nil, err
		}
	}

	exclude := make(map[string]bool, len(positive)+len(negative))
	for _, id := range positive {
		exclude[id] = true
	}
	for _, id := range negative {
		exclude[id] = true
	}

	var hits []ScoredPoint
	for _, p := range c.points {
		if exclude[p.ID] || !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, ScoredPoint{
			ID:      p.ID,
			Score:   cosine(target, p.Dense),
			Payload: p.Payload,
		})
	}
	return topK(hits, limit), nil
}

func (s *MemStore) Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	var out []Point
	for _, p := range c.points {
		if matches(p.Payload, filter) {
			out = append(out, p)
		}
	}
	// Stable order for callers that page or compare runs.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return len(c.points), nil
}

func (s *MemStore) Close() error {
	return nil
}

// collection must be called with the lock held.
func (s *MemStore) collection(name string) (*memCollection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return c, nil
}

// accumulateMean adds sign * mean(vectors of ids) into target.
func accumulateMean(c *memCollection, ids []string, target []float32, sign float32) error {
	scale := sign / float32(len(ids))
	for _, id := range ids {
		p, ok := c.points[id]
		if !ok {
			return fmt.Errorf("%w: example point %q", types.ErrNotFound, id)
		}
		for i, v := range p.Dense {
			target[i] += scale * v
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts hits by score descending with ID as a deterministic
// tie-break, then truncates.
func topK(hits []ScoredPoint, limit int) []ScoredPoint {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
