// Package mcp implements the Model Context Protocol (MCP) server for coderag.
//
// The server exposes five tools to AI coding assistants:
//   - index_repository: Reconcile the vector index against a repository tree
//   - query_codebase: Hybrid dense+sparse+memory retrieval with context assembly
//   - recommend_related: Find chunks similar to given examples
//   - add_memory: Record a conversational turn for a session
//   - get_status: Report index statistics and configured providers
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server listens on stdin and writes responses to stdout, so every
// log line must go to stderr. Tool results are JSON documents rendered
// as text content.
//
// # Tool: index_repository
//
// Walks the tree under an absolute path and brings the index in line
// with it. Re-running against an unchanged tree performs no vector
// writes. Only one indexing run may be in flight; a concurrent call
// fails with a busy error rather than queueing.
//
// # Tool: query_codebase
//
// Runs the hybrid retrieval pipeline and returns both the ranked hits
// and an assembled, token-budgeted context block. With "answer": true
// and a configured LLM provider, the assembled context is fed to the
// model and the generated answer is stored in the session's memory.
//
// # Error Codes
//
// Handlers return *MCPError with JSON-RPC codes: -32602 for invalid
// parameters, -32603 for internal failures, and server-specific codes
// in the -32000 range (busy indexer, empty query, generation disabled).
package mcp
