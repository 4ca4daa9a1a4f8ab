package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/internal/assembler"
	"github.com/kestrelhq/coderag/internal/config"
	"github.com/kestrelhq/coderag/internal/embedder"
	"github.com/kestrelhq/coderag/internal/indexer"
	"github.com/kestrelhq/coderag/internal/manifest"
	"github.com/kestrelhq/coderag/internal/memory"
	"github.com/kestrelhq/coderag/internal/query"
	"github.com/kestrelhq/coderag/internal/recommend"
	"github.com/kestrelhq/coderag/internal/vectorstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := vectorstore.NewMemStore()

	man, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = man.Close() })

	embed, err := embedder.NewClient(embedder.NewLocalProvider(64), embedder.ClientConfig{})
	require.NoError(t, err)

	idx, err := indexer.New(store, man, embed, indexer.Config{
		Collection: "code",
		Workers:    2,
		Logger:     logger,
	})
	require.NoError(t, err)

	mem, err := memory.New(store, embed, memory.Config{Collection: "memory", Logger: logger})
	require.NoError(t, err)

	engine, err := query.New(store, embed, mem, query.Config{Collection: "code", Logger: logger})
	require.NoError(t, err)

	rec, err := recommend.New(store, "code")
	require.NoError(t, err)

	asm, err := assembler.New(assembler.Config{Counter: assembler.HeuristicCounter{}, Logger: logger})
	require.NoError(t, err)

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		cfg:       &config.Config{CodeCollection: "code", MemoryCollection: "memory"},
		store:     store,
		manifest:  man,
		embed:     embed,
		indexer:   idx,
		engine:    engine,
		recommend: rec,
		assemble:  asm,
		memory:    mem,
		logger:    logger,
	}
	s.registerTools()

	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx))
	require.NoError(t, mem.EnsureCollection(ctx))
	return s
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := `def fetch(url):
    return http.get(url)

def parse(body):
    return json.loads(body)
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.py"), []byte(src), 0o644))
	return dir
}

func TestHandleIndexRepository(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)

	res, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["files_indexed"])
	assert.Greater(t, out["chunks_upserted"], float64(0))

	// Second run against the unchanged tree writes nothing.
	res, err = s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, float64(0), out["chunks_upserted"])
	assert.Greater(t, out["chunks_unchanged"], float64(0))
}

func TestHandleIndexRepository_InvalidPath(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": "relative/path",
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing"),
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleIndexRepository_Exclude(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skipme.py"), []byte("def skipped():\n    pass\n"), 0o644))

	res, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path":    dir,
		"exclude": []interface{}{"skipme.py"},
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["files_indexed"])
}

func TestHandleQueryCodebase(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)

	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	res, err := s.handleQueryCodebase(ctx, callRequest("query_codebase", map[string]interface{}{
		"query": "fetch url http get",
		"limit": float64(3),
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	hits, ok := out["hits"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, hits)

	top, ok := hits[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "client.py", top["file"])

	contextText, ok := out["context"].(string)
	require.True(t, ok)
	assert.Contains(t, contextText, "client.py")
	assert.Greater(t, out["tokens_used"], float64(0))
	assert.Contains(t, out["contributed"], "sparse")
}

func TestHandleQueryCodebase_EmptyQuery(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleQueryCodebase(context.Background(), callRequest("query_codebase", map[string]interface{}{
		"query": "",
	}))
	requireMCPCode(t, err, ErrorCodeEmptyQuery)
}

func TestHandleQueryCodebase_AnswerWithoutProvider(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleQueryCodebase(context.Background(), callRequest("query_codebase", map[string]interface{}{
		"query":  "anything",
		"answer": true,
	}))
	requireMCPCode(t, err, ErrorCodeGenerationDisabled)
}

func TestHandleRecommendRelated(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)

	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	queryRes, err := s.handleQueryCodebase(ctx, callRequest("query_codebase", map[string]interface{}{
		"query": "fetch url",
	}))
	require.NoError(t, err)
	hits := resultJSON(t, queryRes)["hits"].([]interface{})
	require.NotEmpty(t, hits)
	seedID := hits[0].(map[string]interface{})["id"].(string)

	res, err := s.handleRecommendRelated(ctx, callRequest("recommend_related", map[string]interface{}{
		"positive_ids": []interface{}{seedID},
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	recHits, ok := out["hits"].([]interface{})
	require.True(t, ok)
	for _, h := range recHits {
		assert.NotEqual(t, seedID, h.(map[string]interface{})["id"], "seed must not recommend itself")
	}
}

func TestHandleRecommendRelated_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleRecommendRelated(ctx, callRequest("recommend_related", map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleRecommendRelated(ctx, callRequest("recommend_related", map[string]interface{}{
		"positive_ids": []interface{}{"00000000-0000-0000-0000-000000000000"},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleAddMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleAddMemory(ctx, callRequest("add_memory", map[string]interface{}{
		"session_id": "s1",
		"role":       "user",
		"text":       "we renamed fetch to download yesterday",
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	assert.NotEmpty(t, out["id"])
	assert.Greater(t, out["timestamp"], float64(0))

	_, err = s.handleAddMemory(ctx, callRequest("add_memory", map[string]interface{}{
		"session_id": "s1",
		"role":       "system",
		"text":       "bad role",
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleQueryCodebase_SessionMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleAddMemory(ctx, callRequest("add_memory", map[string]interface{}{
		"session_id": "s1",
		"role":       "user",
		"text":       "the retry logic lives in the fetch helper",
	}))
	require.NoError(t, err)

	res, err := s.handleQueryCodebase(ctx, callRequest("query_codebase", map[string]interface{}{
		"query":      "retry logic fetch helper",
		"session_id": "s1",
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	assert.Contains(t, out["contributed"], "memory")
}

func TestHandleQueryCodebase_ExpandWidensContext(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)

	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	_, err = s.handleAddMemory(ctx, callRequest("add_memory", map[string]interface{}{
		"session_id": "s1",
		"role":       "user",
		"text":       "the fetch helper retries three times",
	}))
	require.NoError(t, err)

	res, err := s.handleQueryCodebase(ctx, callRequest("query_codebase", map[string]interface{}{
		"query":      "fetch url http get",
		"session_id": "s1",
		"expand":     true,
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	contextText, ok := out["context"].(string)
	require.True(t, ok)

	// The session's recent turn lands in the assembled context.
	assert.Contains(t, contextText, "the fetch helper retries three times")
	assert.Equal(t, 1, strings.Count(contextText, "[memory s1] user"),
		"ranked and expanded copies of a turn collapse to one block")

	// Neighbors of the top hits may duplicate ranked chunks; each chunk
	// renders once.
	assert.Equal(t, 1, strings.Count(contextText, "[client.py:1-2] fetch"))
	assert.Equal(t, 1, strings.Count(contextText, "[client.py:4-5] parse"))
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := writeFixture(t)

	_, err := s.handleIndexRepository(ctx, callRequest("index_repository", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	res, err := s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	assert.Equal(t, ServerVersion, out["server_version"])
	assert.Equal(t, "local", out["embedding_provider"])
	assert.Equal(t, float64(64), out["dense_dimension"])
	assert.Equal(t, float64(1), out["indexed_files"])
	assert.Equal(t, false, out["generation_enabled"])
	assert.Greater(t, out["indexed_chunks"], float64(0))
}

func requireMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code)
}
