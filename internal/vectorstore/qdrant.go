package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelhq/coderag/pkg/types"
)

const (
	qdrantTimeout    = 30 * time.Second
	qdrantScrollPage = 256
)

// QdrantStore talks to a Qdrant server over its REST API. Collections
// use a named dense vector slot plus a named sparse slot, so one point
// serves both retrieval legs.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewQdrantStore creates a client for the given base URL, e.g.
// "http://localhost:6333". The API key is optional.
func NewQdrantStore(baseURL, apiKey string) (*QdrantStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	return &QdrantStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: qdrantTimeout,
		},
	}, nil
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, schema CollectionSchema) error {
	existing, err := q.collectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if *existing != schema {
			return fmt.Errorf("%w: collection %q has dimension %d distance %q, want %d %q",
				types.ErrSchemaMismatch, name,
				existing.DenseDimension, existing.Distance,
				schema.DenseDimension, schema.Distance)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			VectorDense: map[string]any{
				"size":     schema.DenseDimension,
				"distance": distanceName(schema.Distance),
			},
		},
		"sparse_vectors": map[string]any{
			VectorSparse: map[string]any{},
		},
	}
	return q.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

// collectionInfo returns the schema of an existing collection, or nil
// if the collection does not exist.
func (q *QdrantStore) collectionInfo(ctx context.Context, name string) (*CollectionSchema, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors map[string]struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := q.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	dense, ok := resp.Result.Config.Params.Vectors[VectorDense]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q has no %q vector slot", types.ErrSchemaMismatch, name, VectorDense)
	}
	return &CollectionSchema{
		DenseDimension: dense.Size,
		Distance:       strings.ToLower(dense.Distance),
	}, nil
}

func (q *QdrantStore) DropCollection(ctx context.Context, name string) error {
	err := q.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	apiPoints := make([]map[string]any, len(points))
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidPoint)
		}
		vector := map[string]any{
			VectorDense: p.Dense,
		}
		if !p.Sparse.IsZero() {
			vector[VectorSparse] = map[string]any{
				"indices": p.Sparse.Indices,
				"values":  p.Sparse.Values,
			}
		}
		apiPoints[i] = map[string]any{
			"id":      p.ID,
			"vector":  vector,
			"payload": p.Payload,
		}
	}

	body := map[string]any{"points": apiPoints}
	return q.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
}

func (q *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

func (q *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	body := map[string]any{"filter": filterJSON(filter)}
	return q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

func (q *QdrantStore) QueryDense(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	return q.query(ctx, collection, map[string]any{
		"query":        vector,
		"using":        VectorDense,
		"limit":        limit,
		"with_payload": true,
		"filter":       filterJSON(filter),
	})
}

func (q *QdrantStore) QuerySparse(ctx context.Context, collection string, vector types.SparseVector, limit int, filter *Filter) ([]ScoredPoint, error) {
	if vector.IsZero() {
		return nil, nil
	}
	return q.query(ctx, collection, map[string]any{
		"query": map[string]any{
			"indices": vector.Indices,
			"values":  vector.Values,
		},
		"using":        VectorSparse,
		"limit":        limit,
		"with_payload": true,
		"filter":       filterJSON(filter),
	})
}

func (q *QdrantStore) Recommend(ctx context.Context, collection string, positive, negative []string, limit int, filter *Filter) ([]ScoredPoint, error) {
	if len(positive) == 0 {
		return nil, fmt.Errorf("%w: recommend needs at least one positive example", ErrInvalidPoint)
	}
	recommend := map[string]any{"positive": positive}
	if len(negative) > 0 {
		recommend["negative"] = negative
	}
	return q.query(ctx, collection, map[string]any{
		"query":        map[string]any{"recommend": recommend},
		"using":        VectorDense,
		"limit":        limit,
		"with_payload": true,
		"filter":       filterJSON(filter),
	})
}

// query runs the points query API and decodes scored results.
func (q *QdrantStore) query(ctx context.Context, collection string, body map[string]any) ([]ScoredPoint, error) {
	var resp struct {
		Result struct {
			Points []struct {
				ID      any           `json:"id"`
				Score   float64       `json:"score"`
				Payload types.Payload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}

	err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/query", body, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
		}
		return nil, err
	}

	hits := make([]ScoredPoint, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		hits[i] = ScoredPoint{
			ID:      pointIDString(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		}
	}
	return hits, nil
}

func (q *QdrantStore) Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]Point, error) {
	var out []Point
	var offset any

	for {
		page := qdrantScrollPage
		if limit > 0 && limit-len(out) < page {
			page = limit - len(out)
		}
		body := map[string]any{
			"limit":        page,
			"with_payload": true,
			"with_vector":  true,
			"filter":       filterJSON(filter),
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					ID      any             `json:"id"`
					Vector  json.RawMessage `json:"vector"`
					Payload types.Payload   `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp); err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
			}
			return nil, err
		}

		for _, p := range resp.Result.Points {
			point := Point{ID: pointIDString(p.ID), Payload: p.Payload}
			if len(p.Vector) > 0 {
				var slots struct {
					Dense  []float32 `json:"dense"`
					Sparse *struct {
						Indices []uint32  `json:"indices"`
						Values  []float32 `json:"values"`
					} `json:"sparse"`
				}
				if err := json.Unmarshal(p.Vector, &slots); err == nil {
					point.Dense = slots.Dense
					if slots.Sparse != nil {
						point.Sparse = types.SparseVector{
							Indices: slots.Sparse.Indices,
							Values:  slots.Sparse.Values,
						}
					}
				}
			}
			out = append(out, point)
		}

		if resp.Result.NextPageOffset == nil || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (q *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/count", body, &resp)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

func (q *QdrantStore) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}

// do issues one API call and decodes the response into out when
// non-nil.
func (q *QdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// filterJSON converts a Filter to the Qdrant filter object, or nil.
func filterJSON(f *Filter) any {
	if f == nil || len(f.Must) == 0 {
		return nil
	}
	must := make([]map[string]any, len(f.Must))
	for i, m := range f.Must {
		must[i] = map[string]any{
			"key":   m.Field,
			"match": map[string]any{"value": m.Value},
		}
	}
	return map[string]any{"must": must}
}

func distanceName(d string) string {
	switch strings.ToLower(d) {
	case "", "cosine":
		return "Cosine"
	case "dot":
		return "Dot"
	case "euclid":
		return "Euclid"
	default:
		return d
	}
}

func pointIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "error 404")
}
