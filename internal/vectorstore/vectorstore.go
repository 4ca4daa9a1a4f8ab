package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrelhq/coderag/pkg/types"
)

// Common errors
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidPoint       = errors.New("invalid point")
)

// Named vector slots within a collection. Every point carries a dense
// vector; the sparse vector is optional (zero sparse vectors are not
// stored).
const (
	VectorDense  = "dense"
	VectorSparse = "sparse"
)

// CollectionSchema describes the vector configuration a collection was
// created with. EnsureCollection compares it against an existing
// collection and refuses to reuse one with a different shape.
type CollectionSchema struct {
	DenseDimension int
	Distance       string // "cosine" is the only distance used here
}

// DefaultSchema returns the schema for a given dense dimension.
func DefaultSchema(dim int) CollectionSchema {
	return CollectionSchema{DenseDimension: dim, Distance: "cosine"}
}

// Point is a stored vector pair with its payload.
type Point struct {
	ID      string
	Dense   []float32
	Sparse  types.SparseVector
	Payload types.Payload
}

// Validate checks that a point is storable.
func (p Point) Validate(dim int) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPoint)
	}
	if len(p.Dense) != dim {
		return fmt.Errorf("%w: dense vector has %d dims, collection expects %d", ErrInvalidPoint, len(p.Dense), dim)
	}
	if err := p.Sparse.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return nil
}

// ScoredPoint is a query result: a point ID, its raw similarity score
// for the queried vector slot, and the stored payload.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload types.Payload
}

// Match is an exact-value payload condition.
type Match struct {
	Field string
	Value string
}

// Filter restricts queries and deletes to points whose payload matches
// every condition.
type Filter struct {
	Must []Match
}

// FilterByField builds a single-condition filter.
func FilterByField(field, value string) *Filter {
	return &Filter{Must: []Match{{Field: field, Value: value}}}
}

// Store is the persistence boundary for vectors. Two implementations
// exist: Qdrant over REST for real deployments, and an in-memory
// exact-scan store for tests and small repos.
type Store interface {
	// EnsureCollection creates the collection if missing. If it exists
	// with an incompatible schema, it returns types.ErrSchemaMismatch;
	// recovery is explicit (drop and re-ingest), never silent.
	EnsureCollection(ctx context.Context, name string, schema CollectionSchema) error

	// DropCollection deletes a collection and all its points.
	DropCollection(ctx context.Context, name string) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes points by ID. Missing IDs are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes all points matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	// QueryDense returns the limit nearest points by cosine similarity
	// on the dense slot, highest score first.
	QueryDense(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error)

	// QuerySparse returns the limit best points by sparse dot product,
	// highest score first. Points without a sparse vector never match.
	QuerySparse(ctx context.Context, collection string, vector types.SparseVector, limit int, filter *Filter) ([]ScoredPoint, error)

	// Recommend returns points similar to the positive examples and
	// dissimilar to the negative ones, by ID, excluding the examples
	// themselves from the results.
	Recommend(ctx context.Context, collection string, positive, negative []string, limit int, filter *Filter) ([]ScoredPoint, error)

	// Scroll returns up to limit points matching the filter, without
	// scoring. A limit <= 0 returns all matches.
	Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]Point, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources.
	Close() error
}

// matches reports whether a payload satisfies a filter. Shared by the
// in-memory store; the Qdrant client pushes filters to the server.
func matches(p types.Payload, f *Filter) bool {
	if f == nil {
		return true
	}
	for _, m := range f.Must {
		if payloadField(p, m.Field) != m.Value {
			return false
		}
	}
	return true
}

func payloadField(p types.Payload, field string) string {
	switch field {
	case "file_path":
		return p.FilePath
	case "symbol_name":
		return p.SymbolName
	case "kind":
		return string(p.Kind)
	case "language":
		return p.Language
	case "session_id":
		return p.SessionID
	case "role":
		return p.Role
	default:
		return ""
	}
}
