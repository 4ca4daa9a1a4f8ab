// Package assembler renders ranked retrieval hits into a single
// token-budgeted context block. Every included chunk appears whole
// under a citation header; nothing is ever cut mid-chunk, and
// duplicates across retrieval sources are dropped first-wins.
package assembler
