package assembler

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text against the token budget.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a real BPE encoding, matching what the
// downstream model will see.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// DefaultEncoding is the encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// NewTiktokenCounter loads a named encoding. The first load fetches
// the BPE ranks and caches them on disk.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter estimates roughly four bytes per token. It is the
// fallback when the BPE ranks are unavailable, e.g. offline on a
// machine with a cold cache; budgets enforced with it are approximate
// but stable.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
