// Package vectorstore persists dense and sparse vectors and answers
// similarity queries over them. The Store interface covers collection
// lifecycle with schema checking, point upserts and deletes, per-slot
// queries, and ID-based recommendation.
//
// QdrantStore implements the interface against a Qdrant server's REST
// API using named vector slots. MemStore implements it in memory with
// exact scans, for tests and for indexing without a running service.
package vectorstore
