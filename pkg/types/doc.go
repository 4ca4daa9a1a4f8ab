// Package types provides shared type definitions for the coderag engine.
//
// This package defines the domain types used across the indexing and
// retrieval components: chunks, sparse vectors, memory turns, retrieval
// hits, and the shared error taxonomy.
//
// # Core Types
//
// Chunk represents one indexed unit of source code. Its identifier is
// deterministic, derived from (file path, symbol path, kind), so the
// same definition keeps the same ID across re-ingestion runs:
//
//	chunk := &types.Chunk{
//	    FilePath:   "pkg/auth/token.go",
//	    SymbolName: "Verify",
//	    Kind:       types.ChunkFunction,
//	    SourceText: body,
//	}
//	chunk.ComputeID()
//	chunk.ComputeContentHash()
//
// SparseVector is a sorted token-id to weight mapping used for exact
// lexical matching alongside the dense embedding:
//
//	sv := types.NewSparseVector(map[uint32]float32{42: 0.8, 7: 0.3})
//	score := sv.Dot(querySparse)
//
// MemoryTurn is one exchange in a chat session, and RetrievalHit is the
// ephemeral fused result record returned by the query engine.
//
// # Invariants
//
// For a given chunk ID, ContentHash uniquely determines the stored
// vector pair. Stale entries must be deleted before new entries are
// upserted under the same ID; the indexer package enforces this.
//
// # Validation
//
// Domain types implement Validate methods which are checked before
// ingestion:
//
//	if err := chunk.Validate(); err != nil {
//	    log.Printf("skipping invalid chunk: %v", err)
//	}
package types
