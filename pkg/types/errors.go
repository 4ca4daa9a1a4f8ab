package types

import "errors"

// Error taxonomy shared across the engine. Ingestion-time errors are
// per-file or per-chunk and non-fatal to a run; query-time errors favor
// degraded results over failure; schema errors are fatal.
var (
	// ErrParse indicates a file could not be segmented. The file is
	// skipped with a warning and ingestion continues.
	ErrParse = errors.New("parse failed")

	// ErrEmbedding indicates a chunk could not be embedded after
	// retries were exhausted. The chunk is excluded from the run.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexInconsistency indicates a vector store delete or upsert
	// failed mid-reconcile. The manifest is left untouched so the file
	// is re-reconciled on the next run.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrRetrievalTimeout indicates a sub-retrieval missed its
	// deadline. The query degrades to partial fusion.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrSchemaMismatch indicates a vector's shape disagrees with the
	// collection schema. Fatal: it means the backend or configuration
	// is wrong upstream.
	ErrSchemaMismatch = errors.New("vector schema mismatch")

	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrReconcileBusy indicates another reconcile holds the per-file
	// writer lock. Callers must serialize writes per file path.
	ErrReconcileBusy = errors.New("reconcile already in progress for file")
)
