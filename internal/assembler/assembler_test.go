package assembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/pkg/types"
)

func newTestAssembler(t *testing.T, budget, maxPerFile int) *Assembler {
	t.Helper()
	a, err := New(Config{TokenBudget: budget, MaxPerFile: maxPerFile, Counter: HeuristicCounter{}})
	require.NoError(t, err)
	return a
}

func codeHit(id, file, symbol, text string, start, end int) types.RetrievalHit {
	h := types.RetrievalHit{
		ID:         id,
		FusedScore: 1,
		Payload: types.Payload{
			FilePath:   file,
			SymbolName: symbol,
			SourceText: text,
			StartLine:  start,
			EndLine:    end,
		},
	}
	h.AddSource(types.SourceDense, 1)
	return h
}

func memoryHit(id, session, role, text string) types.RetrievalHit {
	h := types.RetrievalHit{
		ID:         id,
		FusedScore: 0.5,
		Payload:    types.Payload{SessionID: session, Role: role, Text: text},
	}
	h.AddSource(types.SourceMemory, 0.5)
	return h
}

func TestAssembleHeadersCiteSource(t *testing.T) {
	a := newTestAssembler(t, 1000, 0)

	ctx := a.Assemble([]types.RetrievalHit{
		codeHit("c1", "internal/app/run.go", "Server.Run", "func (s *Server) Run() error {\n\treturn nil\n}", 10, 12),
		memoryHit("m1", "s1", "assistant", "we run the server on 8080"),
	})

	require.Len(t, ctx.Evidence, 2)
	assert.Equal(t, "[internal/app/run.go:10-12] Server.Run", ctx.Evidence[0].Header)
	assert.Contains(t, ctx.Text, "[internal/app/run.go:10-12] Server.Run")
	assert.True(t, ctx.Evidence[1].Memory)
	assert.Contains(t, ctx.Evidence[1].Header, "[memory s1]")
}

func TestAssembleDeduplicatesFirstWins(t *testing.T) {
	a := newTestAssembler(t, 1000, 0)

	high := codeHit("same", "a.go", "First", "first body", 1, 2)
	low := codeHit("same", "a.go", "Second", "second body", 5, 6)
	low.FusedScore = 0.1

	ctx := a.Assemble([]types.RetrievalHit{high, low})

	require.Len(t, ctx.Evidence, 1)
	assert.Equal(t, "First", ctx.Evidence[0].Symbol)
	assert.Equal(t, 1, ctx.SkippedDuplicate)
}

func TestAssembleNeverCutsMidChunk(t *testing.T) {
	a := newTestAssembler(t, 30, 0)

	big := codeHit("big", "big.go", "Big", strings.Repeat("x", 400), 1, 50)
	small := codeHit("small", "small.go", "Small", "tiny body", 1, 2)

	ctx := a.Assemble([]types.RetrievalHit{big, small})

	require.Len(t, ctx.Evidence, 1, "big chunk is skipped whole, small one still fits")
	assert.Equal(t, "Small", ctx.Evidence[0].Symbol)
	assert.Equal(t, 1, ctx.SkippedOverBudget)
	assert.NotContains(t, ctx.Text, "xxx")
}

func TestAssembleRespectsBudget(t *testing.T) {
	a := newTestAssembler(t, 50, 0)

	var hits []types.RetrievalHit
	for i := 0; i < 20; i++ {
		hits = append(hits, codeHit(
			string(rune('a'+i)), "f.go", "Sym", strings.Repeat("body ", 20), 1, 5))
	}

	ctx := a.Assemble(hits)
	assert.LessOrEqual(t, ctx.TokensUsed, 50)
	assert.Greater(t, ctx.SkippedOverBudget, 0)
}

func TestAssembleMaxPerFile(t *testing.T) {
	a := newTestAssembler(t, 10000, 2)

	hits := []types.RetrievalHit{
		codeHit("1", "hot.go", "A", "body a", 1, 1),
		codeHit("2", "hot.go", "B", "body b", 2, 2),
		codeHit("3", "hot.go", "C", "body c", 3, 3),
		codeHit("4", "cold.go", "D", "body d", 4, 4),
	}

	ctx := a.Assemble(hits)

	files := make(map[string]int)
	for _, ev := range ctx.Evidence {
		files[ev.FilePath]++
	}
	assert.Equal(t, 2, files["hot.go"])
	assert.Equal(t, 1, files["cold.go"])
}

func TestAssembleEmptyInput(t *testing.T) {
	a := newTestAssembler(t, 100, 0)
	ctx := a.Assemble(nil)
	assert.Empty(t, ctx.Text)
	assert.Empty(t, ctx.Evidence)
	assert.Zero(t, ctx.TokensUsed)
}

func TestAssembleSeparatorBetweenBlocks(t *testing.T) {
	a := newTestAssembler(t, 1000, 0)

	ctx := a.Assemble([]types.RetrievalHit{
		codeHit("1", "a.go", "A", "alpha", 1, 1),
		codeHit("2", "b.go", "B", "beta", 1, 1),
	})

	parts := strings.Split(ctx.Text, separator)
	assert.Len(t, parts, 2)
}

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	assert.Zero(t, c.Count(""))
	assert.Equal(t, 1, c.Count("ab"))
	assert.Equal(t, 25, c.Count(strings.Repeat("x", 100)))
}
