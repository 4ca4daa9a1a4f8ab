package assembler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kestrelhq/coderag/pkg/types"
)

const (
	DefaultTokenBudget = 2048

	separator = "\n\n---\n\n"
)

// Evidence is one block of assembled context, kept structured so
// callers can cite sources instead of re-parsing the prompt text.
type Evidence struct {
	Header    string
	Body      string
	FilePath  string
	Symbol    string
	StartLine int
	EndLine   int
	Session   string
	Role      string
	Score     float64
	Memory    bool
	Tokens    int
}

// Context is the assembled, budget-bounded prompt block.
type Context struct {
	// Text is the concatenated evidence, ready to paste into a prompt.
	Text string

	// Evidence lists the included blocks in the order they appear.
	Evidence []Evidence

	// TokensUsed is the token count of Text.
	TokensUsed int

	// SkippedOverBudget counts hits that did not fit. A chunk is
	// included whole or not at all, never cut mid-chunk.
	SkippedOverBudget int

	// SkippedDuplicate counts hits dropped because an earlier,
	// higher-ranked hit had the same ID.
	SkippedDuplicate int
}

// Config configures an Assembler.
type Config struct {
	TokenBudget int

	// MaxPerFile caps how many chunks of one file may enter the
	// context, so a single file cannot crowd out the rest of the
	// repository. Zero means no cap.
	MaxPerFile int

	// Counter overrides token counting. Nil tries the real BPE
	// encoding and falls back to a byte heuristic.
	Counter TokenCounter

	Logger *slog.Logger
}

// Assembler renders ranked hits into a token-budgeted context block.
type Assembler struct {
	budget     int
	maxPerFile int
	counter    TokenCounter
	logger     *slog.Logger
}

// New creates an Assembler.
func New(cfg Config) (*Assembler, error) {
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	counter := cfg.Counter
	if counter == nil {
		tk, err := NewTiktokenCounter(DefaultEncoding)
		if err != nil {
			logger.Warn("token encoding unavailable, using byte heuristic", "error", err)
			counter = HeuristicCounter{}
		} else {
			counter = tk
		}
	}

	return &Assembler{
		budget:     budget,
		maxPerFile: cfg.MaxPerFile,
		counter:    counter,
		logger:     logger,
	}, nil
}

// Assemble walks hits in rank order and packs whole blocks until the
// budget is spent. Duplicates are dropped first-wins, so when code and
// memory retrieval surface the same item only the higher-ranked copy
// is rendered. Hits that do not fit are skipped, and later smaller
// hits may still be admitted.
func (a *Assembler) Assemble(hits []types.RetrievalHit) *Context {
	out := &Context{}
	seen := make(map[string]bool, len(hits))
	perFile := make(map[string]int)

	var sb strings.Builder
	used := 0

	for _, hit := range hits {
		if seen[hit.ID] {
			out.SkippedDuplicate++
			continue
		}
		seen[hit.ID] = true

		ev := evidenceFromHit(hit)
		if ev.Body == "" {
			continue
		}
		if a.maxPerFile > 0 && !ev.Memory && perFile[ev.FilePath] >= a.maxPerFile {
			out.SkippedOverBudget++
			continue
		}

		block := ev.Header + "\n" + ev.Body
		cost := a.counter.Count(block)
		if len(out.Evidence) > 0 {
			cost += a.counter.Count(separator)
		}
		if used+cost > a.budget {
			out.SkippedOverBudget++
			continue
		}

		if len(out.Evidence) > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(block)
		used += cost

		ev.Tokens = cost
		out.Evidence = append(out.Evidence, ev)
		if !ev.Memory {
			perFile[ev.FilePath]++
		}
	}

	out.Text = sb.String()
	out.TokensUsed = used
	return out
}

// evidenceFromHit builds the header and body for one hit. Code hits
// cite file, line range, and symbol; memory hits cite session and
// speaker.
func evidenceFromHit(hit types.RetrievalHit) Evidence {
	p := hit.Payload

	if hit.HasSource(types.SourceMemory) || (p.SessionID != "" && p.SourceText == "") {
		return Evidence{
			Header:  fmt.Sprintf("[memory %s] %s", p.SessionID, p.Role),
			Body:    p.Text,
			Session: p.SessionID,
			Role:    p.Role,
			Score:   hit.FusedScore,
			Memory:  true,
		}
	}

	return Evidence{
		Header:    fmt.Sprintf("[%s:%d-%d] %s", p.FilePath, p.StartLine, p.EndLine, p.SymbolName),
		Body:      p.SourceText,
		FilePath:  p.FilePath,
		Symbol:    p.SymbolName,
		StartLine: p.StartLine,
		EndLine:   p.EndLine,
		Score:     hit.FusedScore,
	}
}
