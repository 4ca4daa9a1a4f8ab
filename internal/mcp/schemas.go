package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index or re-index a repository. Only new and changed chunks are embedded; removed code is deleted from the index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"exclude": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Glob patterns for files to skip, e.g. **/*_test.go",
				},
				"include_readme": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index the root README.md as documentation",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// queryCodebaseTool returns the tool definition for query_codebase
func queryCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_codebase",
		Description: "Hybrid search over the indexed codebase (semantic + lexical, plus session memory), returning a ranked, token-budgeted context block",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session whose conversation memory should participate in retrieval",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of fused results (1-50)",
					"default":     6,
					"minimum":     1,
					"maximum":     50,
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict code hits to one language, e.g. go or python",
				},
				"answer": map[string]interface{}{
					"type":        "boolean",
					"description": "If true and an LLM is configured, generate an answer over the assembled context",
					"default":     false,
				},
				"expand": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, widen the assembled context with chunks similar to the top hits and the session's recent turns",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// recommendRelatedTool returns the tool definition for recommend_related
func recommendRelatedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recommend_related",
		Description: "Find chunks similar to given example chunks (more-like-this), optionally steering away from negative examples",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"positive_ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Chunk IDs the results should resemble (at least one)",
				},
				"negative_ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Chunk IDs to steer away from",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-50)",
					"default":     6,
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one language",
				},
			},
			Required: []string{"positive_ids"},
		},
	}
}

// addMemoryTool returns the tool definition for add_memory
func addMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_memory",
		Description: "Record a conversational turn so later queries in the same session can retrieve it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session the turn belongs to",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Speaker role: user or assistant",
					"enum":        []string{"user", "assistant"},
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "The turn text",
				},
			},
			Required: []string{"session_id", "role", "text"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index size, collections, and configured providers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
