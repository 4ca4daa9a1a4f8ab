package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeID_Deterministic(t *testing.T) {
	a := &Chunk{
		FilePath:   "src/auth.py",
		SymbolName: "verify_token",
		Kind:       ChunkFunction,
		SourceText: "def verify_token(tok):\n    return tok == secret\n",
		StartLine:  10,
		EndLine:    12,
	}
	b := &Chunk{
		FilePath:   "src/auth.py",
		SymbolName: "verify_token",
		Kind:       ChunkFunction,
		SourceText: "def verify_token(tok):\n    return check(tok)\n",
		StartLine:  42, // moved and edited
		EndLine:    44,
	}

	// Same file + symbol + kind keeps the same ID even when the body
	// and position change.
	assert.Equal(t, a.ComputeID(), b.ComputeID())

	a.ComputeContentHash()
	b.ComputeContentHash()
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestComputeID_DistinguishesKindAndParent(t *testing.T) {
	fn := &Chunk{FilePath: "m.py", SymbolName: "run", Kind: ChunkFunction}
	cls := &Chunk{FilePath: "m.py", SymbolName: "run", Kind: ChunkClass}
	assert.NotEqual(t, fn.ComputeID(), cls.ComputeID())

	nested := &Chunk{FilePath: "m.py", SymbolName: "run", ParentSymbol: "Worker", Kind: ChunkFunction}
	assert.NotEqual(t, fn.ComputeID(), nested.ComputeID())
	assert.Equal(t, "Worker.run", nested.SymbolPath())
}

func TestChunkValidate(t *testing.T) {
	c := &Chunk{
		FilePath:   "main.go",
		SymbolName: "main",
		Kind:       ChunkFunction,
		SourceText: "func main() {}",
		StartLine:  1,
		EndLine:    1,
	}
	c.ComputeID()
	c.ComputeContentHash()
	require.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{"empty source", func(c *Chunk) { c.SourceText = "" }},
		{"bad lines", func(c *Chunk) { c.StartLine = 9; c.EndLine = 3 }},
		{"zero line", func(c *Chunk) { c.StartLine = 0 }},
		{"bad kind", func(c *Chunk) { c.Kind = "snippet" }},
		{"no path", func(c *Chunk) { c.FilePath = "" }},
		{"no hash", func(c *Chunk) { c.ContentHash = [32]byte{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *c
			tt.mutate(&bad)
			assert.Error(t, bad.Validate())
		})
	}
}

func TestHashHex(t *testing.T) {
	c := &Chunk{SourceText: "x = 1"}
	c.ComputeContentHash()
	assert.Len(t, c.HashHex(), 64)
}
