// Package memory stores conversational turns as vectors so earlier
// discussion in a session can be retrieved alongside code. Appends are
// embed-and-upsert with deterministic IDs and per-session monotonic
// timestamps; reads are either by recency or by dense similarity,
// always scoped to one session.
package memory
