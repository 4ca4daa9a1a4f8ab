// Package manifest tracks what the vector index is believed to
// contain. It maps each indexed file to its chunk IDs and content
// hashes in a local SQLite database, which lets re-ingestion compute
// the minimal set of upserts and deletes instead of re-embedding the
// whole repository.
//
// The writer discipline is strict: vector store writes land first, the
// manifest is updated last. A crash between the two leaves extra work
// for the next run, never a record of writes that did not happen.
package manifest
