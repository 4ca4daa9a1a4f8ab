// Package indexer converges the vector index with a repository tree.
//
// Reconcile is the core operation: it segments every indexable file,
// diffs the result against the manifest by deterministic chunk ID and
// content hash, and performs only the writes the diff requires. An
// unchanged tree produces zero vector writes; an edited function
// re-embeds one chunk. Deletes always land before upserts, and the
// manifest is updated only after the store accepted the writes, so an
// interrupted run redoes work rather than losing it.
//
// Files are processed concurrently on a bounded worker pool. A second
// Reconcile while one is running fails fast with
// types.ErrReconcileBusy.
package indexer
