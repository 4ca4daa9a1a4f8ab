package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kestrelhq/coderag/internal/llm"
	"github.com/kestrelhq/coderag/internal/query"
	"github.com/kestrelhq/coderag/internal/recommend"
	"github.com/kestrelhq/coderag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeReconcileBusy      = -32001 // Another reconcile is already running
	ErrorCodeEmptyQuery         = -32002 // Query parameter is empty
	ErrorCodeGenerationDisabled = -32003 // No LLM provider configured
)

// Path validation errors
var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrNotDirectory    = errors.New("path is not a directory")
)

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	walk := s.indexer.WalkConfig()
	walk.IncludeReadme = getBoolDefault(args, "include_readme", true)
	walk.Exclude = stringSlice(args["exclude"])

	stats, err := s.indexer.ReconcileWith(ctx, path, walk)
	if err != nil {
		if errors.Is(err, types.ErrReconcileBusy) {
			return nil, newMCPError(ErrorCodeReconcileBusy, "an indexing run is already in progress", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"files_scanned":    stats.FilesScanned,
		"files_indexed":    stats.FilesIndexed,
		"files_unchanged":  stats.FilesUnchanged,
		"files_failed":     stats.FilesFailed,
		"files_deleted":    stats.FilesDeleted,
		"chunks_upserted":  stats.ChunksUpserted,
		"chunks_deleted":   stats.ChunksDeleted,
		"chunks_unchanged": stats.ChunksUnchanged,
		"chunks_failed":    stats.ChunksFailed,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > 5 {
			response["errors"] = stats.ErrorMessages[:5]
		} else {
			response["errors"] = stats.ErrorMessages
		}
		response["error_count"] = n
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueryCodebase handles the query_codebase tool invocation
func (s *Server) handleQueryCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	q, ok := args["query"].(string)
	if !ok || q == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	sessionID, _ := args["session_id"].(string)
	language, _ := args["language"].(string)
	limit := getIntDefault(args, "limit", 0)
	wantAnswer := getBoolDefault(args, "answer", false)
	expand := getBoolDefault(args, "expand", false)

	res, err := s.engine.Retrieve(ctx, query.Request{
		Query:     q,
		SessionID: sessionID,
		Language:  language,
		Limit:     limit,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	hits := res.Hits
	if expand {
		hits = s.expandHits(ctx, hits, sessionID)
	}
	assembled := s.assemble.Assemble(hits)

	response := map[string]interface{}{
		"hits":        hitsJSON(res.Hits),
		"context":     assembled.Text,
		"tokens_used": assembled.TokensUsed,
		"contributed": sourceNames(res.Contributed),
	}
	if len(res.Degraded) > 0 {
		response["degraded"] = sourceNames(res.Degraded)
	}
	if assembled.SkippedOverBudget > 0 {
		response["skipped_over_budget"] = assembled.SkippedOverBudget
	}

	if wantAnswer {
		if s.llm == nil {
			return nil, newMCPError(ErrorCodeGenerationDisabled, "no llm provider configured", nil)
		}
		answer, err := s.llm.Complete(ctx, llm.AnswerSystemPrompt, llm.BuildUserPrompt(q, assembled.Text))
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "generation failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["answer"] = answer

		// Persist the exchange so the session's later queries see it.
		if sessionID != "" {
			if _, err := s.memory.Append(ctx, sessionID, "user", q); err != nil {
				s.logger.Warn("memory append failed", "error", err)
			} else if _, err := s.memory.Append(ctx, sessionID, "assistant", answer); err != nil {
				s.logger.Warn("memory append failed", "error", err)
			}
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// expandSeeds caps how many ranked code hits seed the neighbor lookup.
const expandSeeds = 3

// expandHits widens the fused results with neighbors of the top code
// hits and the session's recent turns. Extras go after the ranked hits
// so assembly keeps the ranked copy when both carry the same chunk.
func (s *Server) expandHits(ctx context.Context, hits []types.RetrievalHit, sessionID string) []types.RetrievalHit {
	out := hits

	var seeds []string
	for _, h := range hits {
		if h.HasSource(types.SourceMemory) {
			continue
		}
		seeds = append(seeds, h.ID)
		if len(seeds) == expandSeeds {
			break
		}
	}
	if len(seeds) > 0 {
		related, err := s.recommend.Recommend(ctx, recommend.Request{Positive: seeds})
		if err != nil {
			s.logger.Warn("neighbor expansion failed", "error", err)
		} else {
			out = append(out, related...)
		}
	}

	if sessionID != "" {
		turns, err := s.memory.Recent(ctx, sessionID, s.cfg.TopKMemory)
		if err != nil {
			s.logger.Warn("recent-turn expansion failed", "error", err)
		} else {
			for _, t := range turns {
				out = append(out, types.RetrievalHit{
					ID:      t.ID,
					Sources: []types.HitSource{types.SourceMemory},
					Payload: types.Payload{
						SessionID: t.SessionID,
						Role:      string(t.Role),
						Text:      t.Text,
						Timestamp: t.Timestamp.UnixNano(),
					},
				})
			}
		}
	}
	return out
}

// handleRecommendRelated handles the recommend_related tool invocation
func (s *Server) handleRecommendRelated(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	positive := stringSlice(args["positive_ids"])
	if len(positive) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "positive_ids must contain at least one chunk id", map[string]interface{}{
			"param": "positive_ids",
		})
	}

	language, _ := args["language"].(string)
	hits, err := s.recommend.Recommend(ctx, recommend.Request{
		Positive: positive,
		Negative: stringSlice(args["negative_ids"]),
		Limit:    getIntDefault(args, "limit", 0),
		Language: language,
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, newMCPError(ErrorCodeInvalidParams, "unknown example chunk id", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "recommendation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"hits": hitsJSON(hits),
	})), nil
}

// handleAddMemory handles the add_memory tool invocation
func (s *Server) handleAddMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, _ := args["session_id"].(string)
	role, _ := args["role"].(string)
	text, _ := args["text"].(string)

	turn, err := s.memory.Append(ctx, sessionID, role, text)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid turn", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"id":        turn.ID,
		"timestamp": turn.Timestamp.UnixNano(),
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	points, files, chunks, err := s.indexer.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "status failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"server_version":     ServerVersion,
		"code_collection":    s.cfg.CodeCollection,
		"memory_collection":  s.cfg.MemoryCollection,
		"points":             points,
		"indexed_files":      files,
		"indexed_chunks":     chunks,
		"embedding_provider": s.embed.Provider(),
		"dense_dimension":    s.embed.Dimension(),
		"generation_enabled": s.llm != nil,
	}
	if s.llm != nil {
		response["llm_provider"] = s.llm.Name()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// hitsJSON flattens hits for the wire.
func hitsJSON(hits []types.RetrievalHit) []map[string]interface{} {
	out := make([]map[string]interface{}, len(hits))
	for i, h := range hits {
		entry := map[string]interface{}{
			"id":      h.ID,
			"score":   h.FusedScore,
			"sources": sourceNames(h.Sources),
		}
		if h.HasSource(types.SourceMemory) {
			entry["session_id"] = h.Payload.SessionID
			entry["role"] = h.Payload.Role
			entry["text"] = h.Payload.Text
		} else {
			entry["file"] = h.Payload.FilePath
			entry["symbol"] = h.Payload.SymbolName
			entry["kind"] = string(h.Payload.Kind)
			entry["start_line"] = h.Payload.StartLine
			entry["end_line"] = h.Payload.EndLine
			entry["language"] = h.Payload.Language
		}
		out[i] = entry
	}
	return out
}

func sourceNames(sources []types.HitSource) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getBoolDefault(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func getIntDefault(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func formatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, existing directory.
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}
