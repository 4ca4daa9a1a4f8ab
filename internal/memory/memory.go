package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/coderag/internal/embedder"
	"github.com/kestrelhq/coderag/internal/vectorstore"
	"github.com/kestrelhq/coderag/pkg/types"
)

// turnNamespace derives deterministic turn IDs so replaying the same
// append is an upsert, not a duplicate.
var turnNamespace = uuid.MustParse("4f54c2b1-9d0e-4c5a-b1a7-3e8d92f60c55")

// Store persists conversational turns as dense vectors so prior
// discussion can participate in retrieval. Turns are scoped to a
// session; queries never cross sessions.
type Store struct {
	store      vectorstore.Store
	embed      *embedder.Client
	collection string
	logger     *slog.Logger

	mu     sync.Mutex
	lastTS map[string]int64 // per-session monotonic clock, unix nanos
}

// Config configures a memory store.
type Config struct {
	Collection string
	Logger     *slog.Logger
}

// New creates a memory store over the given backends.
func New(store vectorstore.Store, embed *embedder.Client, cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("memory collection name required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		store:      store,
		embed:      embed,
		collection: cfg.Collection,
		logger:     logger,
		lastTS:     make(map[string]int64),
	}, nil
}

// EnsureCollection creates the memory collection if missing.
func (s *Store) EnsureCollection(ctx context.Context) error {
	return s.store.EnsureCollection(ctx, s.collection, vectorstore.DefaultSchema(s.embed.Dimension()))
}

// Append records one conversational turn. Timestamps are strictly
// monotonic within a session even when appends land in the same
// nanosecond, so Recent never interleaves turns out of order.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) (types.MemoryTurn, error) {
	turn := types.MemoryTurn{
		SessionID: sessionID,
		Role:      types.Role(role),
		Text:      text,
	}
	if err := turn.Validate(); err != nil {
		return types.MemoryTurn{}, err
	}

	ns := s.nextTimestamp(sessionID)
	turn.Timestamp = time.Unix(0, ns)
	turn.ID = uuid.NewSHA1(turnNamespace,
		[]byte(fmt.Sprintf("%s::%d::%s", sessionID, ns, role))).String()

	vec, err := s.embed.EmbedDenseOne(ctx, text)
	if err != nil {
		return types.MemoryTurn{}, err
	}

	point := vectorstore.Point{
		ID:    turn.ID,
		Dense: vec,
		Payload: types.Payload{
			SessionID: sessionID,
			Role:      role,
			Text:      text,
			Timestamp: ns,
		},
	}
	if err := s.store.Upsert(ctx, s.collection, []vectorstore.Point{point}); err != nil {
		return types.MemoryTurn{}, fmt.Errorf("store turn: %w", err)
	}

	return turn, nil
}

func (s *Store) nextTimestamp(sessionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().UnixNano()
	if last := s.lastTS[sessionID]; ts <= last {
		ts = last + 1
	}
	s.lastTS[sessionID] = ts
	return ts
}

// Recent returns the latest limit turns of a session in chronological
// order.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]types.MemoryTurn, error) {
	points, err := s.store.Scroll(ctx, s.collection,
		vectorstore.FilterByField("session_id", sessionID), 0)
	if err != nil {
		return nil, err
	}

	turns := make([]types.MemoryTurn, 0, len(points))
	for _, p := range points {
		turns = append(turns, turnFromPayload(p.ID, p.Payload))
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Timestamp.Before(turns[j].Timestamp) })

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Search returns the turns of a session most similar to the query
// vector, highest score first. Other sessions never leak into the
// results.
func (s *Store) Search(ctx context.Context, sessionID string, queryVec []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if sessionID == "" {
		return nil, nil
	}
	return s.store.QueryDense(ctx, s.collection, queryVec, limit,
		vectorstore.FilterByField("session_id", sessionID))
}

// Clear deletes every turn of a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	err := s.store.DeleteByFilter(ctx, s.collection,
		vectorstore.FilterByField("session_id", sessionID))
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.lastTS, sessionID)
	s.mu.Unlock()
	return nil
}

func turnFromPayload(id string, p types.Payload) types.MemoryTurn {
	return types.MemoryTurn{
		ID:        id,
		SessionID: p.SessionID,
		Role:      types.Role(p.Role),
		Text:      p.Text,
		Timestamp: time.Unix(0, p.Timestamp),
	}
}
