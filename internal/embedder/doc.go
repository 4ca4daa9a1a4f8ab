// Package embedder turns text into the dense and sparse vectors the
// index stores. Dense vectors come from a pluggable provider (OpenAI
// or a deterministic local hasher) behind batching, bounded retry, and
// a content-hash LRU cache. Sparse vectors come from a local lexical
// encoder that splits identifiers on camelCase and snake_case
// boundaries, so they need no backend at all.
//
// Usage:
//
//	client, err := embedder.NewFromConfig(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	dense, err := client.EmbedDense(ctx, texts)
//	sparse, err := client.EmbedSparse(ctx, texts)
package embedder
