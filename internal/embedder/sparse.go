package embedder

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kestrelhq/coderag/pkg/types"
)

// SparseEncoder produces lexical sparse vectors from source text. It is
// fully local: tokens are hashed into a fixed index space and weighted
// by log-scaled term frequency, so the same text always encodes to the
// same vector on every machine. Identifiers are split on camelCase and
// snake_case boundaries so a query for "parse config" matches
// parseConfig and parse_config alike.
type SparseEncoder struct {
	minTokenLen int
}

// NewSparseEncoder returns an encoder with default settings.
func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{minTokenLen: 2}
}

// Encode tokenizes text and returns its sparse vector. Text with no
// usable tokens encodes to the zero vector, which callers treat as
// "skip the sparse leg" rather than an error.
func (e *SparseEncoder) Encode(text string) types.SparseVector {
	counts := make(map[uint32]float32)
	for _, tok := range e.Tokenize(text) {
		counts[hashToken(tok)]++
	}
	if len(counts) == 0 {
		return types.SparseVector{}
	}

	// Log-scaled term frequency, then L2 normalization so dot products
	// between sparse vectors land in [0, 1].
	var norm float64
	for id, tf := range counts {
		w := float32(1.0 + math.Log(float64(tf)))
		counts[id] = w
		norm += float64(w) * float64(w)
	}
	norm = math.Sqrt(norm)
	for id, w := range counts {
		counts[id] = float32(float64(w) / norm)
	}

	return types.NewSparseVector(counts)
}

// Tokenize splits text into lowercase terms. Runs of letters and
// digits form raw tokens; raw tokens are further split at underscore
// and lower-to-upper camelCase boundaries, and both the full token and
// its parts are emitted so exact identifier matches still score.
func (e *SparseEncoder) Tokenize(text string) []string {
	var tokens []string

	emit := func(tok string) {
		tok = strings.ToLower(tok)
		if len(tok) >= e.minTokenLen && !isNumeric(tok) {
			tokens = append(tokens, tok)
		}
	}

	var raw strings.Builder
	flush := func() {
		if raw.Len() == 0 {
			return
		}
		word := raw.String()
		raw.Reset()

		parts := splitIdentifier(word)
		for _, p := range parts {
			emit(p)
		}
		// The whole identifier too, when splitting changed it.
		if len(parts) > 1 {
			emit(word)
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			raw.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// splitIdentifier breaks an identifier at underscores and camelCase
// transitions: "parseHTTPConfig" becomes [parse, http, config].
func splitIdentifier(word string) []string {
	var parts []string
	var cur []rune

	runes := []rune(word)
	for i, r := range runes {
		if r == '_' {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// Split at aB and at the last capital of an acronym run (HTTPServer).
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hashToken(tok string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return h.Sum32()
}
