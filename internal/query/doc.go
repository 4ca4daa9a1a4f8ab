// Package query implements hybrid retrieval: dense and sparse searches
// over the code collection plus an optional memory search, run
// concurrently under per-leg deadlines and fused into one ranking.
// Scores are min-max normalized within each source before a weighted
// sum, and a leg that fails degrades the result rather than failing
// the query.
package query
