package segmenter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/internal/source"
	"github.com/kestrelhq/coderag/pkg/types"
)

func segment(t *testing.T, path, lang, text string) []types.Chunk {
	t.Helper()
	chunks, err := New().Segment(source.File{Path: path, Text: text, Language: lang})
	require.NoError(t, err)
	return chunks
}

func byName(chunks []types.Chunk) map[string]types.Chunk {
	out := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		out[c.SymbolPath()] = c
	}
	return out
}

func TestSegment_PythonBasics(t *testing.T) {
	text := `import os

TIMEOUT = 30

def fetch(url):
    return os.popen(url)

class Client:
    retries = 3

    def get(self, url):
        return fetch(url)
`
	chunks := segment(t, "src/client.py", "python", text)
	named := byName(chunks)

	require.Contains(t, named, "client")
	require.Contains(t, named, "fetch")
	require.Contains(t, named, "Client")
	require.Contains(t, named, "Client.get")

	mod := named["client"]
	assert.Equal(t, types.ChunkModule, mod.Kind)
	assert.Contains(t, mod.SourceText, "import os")
	assert.Contains(t, mod.SourceText, "TIMEOUT = 30")
	assert.NotContains(t, mod.SourceText, "def fetch")

	get := named["Client.get"]
	assert.Equal(t, types.ChunkFunction, get.Kind)
	assert.Equal(t, "Client", get.ParentSymbol)
	assert.Contains(t, get.SourceText, "return fetch(url)")

	// Containment: the class chunk keeps class-level code but not the
	// text of its method chunks.
	cls := named["Client"]
	assert.Equal(t, types.ChunkClass, cls.Kind)
	assert.Contains(t, cls.SourceText, "retries = 3")
	assert.NotContains(t, cls.SourceText, "def get")
	// The class span still contains the method by line range.
	assert.LessOrEqual(t, cls.StartLine, get.StartLine)
	assert.GreaterOrEqual(t, cls.EndLine, get.EndLine)
}

func TestSegment_PythonDecoratorsBelongToDefinition(t *testing.T) {
	text := `@app.route("/health")
def health():
    return "ok"
`
	named := byName(segment(t, "app.py", "python", text))

	h := named["health"]
	assert.Equal(t, 1, h.StartLine)
	assert.Contains(t, h.SourceText, `@app.route("/health")`)

	// Nothing module-level remains.
	assert.NotContains(t, named, "app")
}

func TestSegment_PythonSiblingDefsClose(t *testing.T) {
	text := `def first():
    a = 1

def second():
    b = 2
`
	named := byName(segment(t, "m.py", "python", text))

	require.Contains(t, named, "first")
	require.Contains(t, named, "second")
	assert.Equal(t, 2, named["first"].EndLine)
	assert.Equal(t, 4, named["second"].StartLine)
	assert.NotContains(t, named["first"].SourceText, "second")
}

func TestSegment_PythonNestedFunction(t *testing.T) {
	text := `def outer():
    x = 1
    def inner():
        return x
    return inner
`
	named := byName(segment(t, "n.py", "python", text))

	require.Contains(t, named, "outer")
	require.Contains(t, named, "outer.inner")
	assert.Equal(t, "outer", named["outer.inner"].ParentSymbol)
	assert.NotContains(t, named["outer"].SourceText, "def inner")
	assert.Contains(t, named["outer"].SourceText, "return inner")
}

func TestSegment_Go(t *testing.T) {
	text := `package web

import "net/http"

const timeout = 30

// Server wraps an http server.
type Server struct {
	addr string
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.addr, nil)
}

func New(addr string) *Server {
	return &Server{addr: addr}
}
`
	named := byName(segment(t, "web/server.go", "go", text))

	require.Contains(t, named, "Server")
	require.Contains(t, named, "Server.ListenAndServe")
	require.Contains(t, named, "New")
	require.Contains(t, named, "server")

	assert.Equal(t, types.ChunkClass, named["Server"].Kind)
	assert.Contains(t, named["Server"].SourceText, "// Server wraps an http server.")

	lns := named["Server.ListenAndServe"]
	assert.Equal(t, "Server", lns.ParentSymbol)
	assert.Equal(t, "ListenAndServe starts the server.", lns.DocComment)

	mod := named["server"]
	assert.Contains(t, mod.SourceText, "package web")
	assert.Contains(t, mod.SourceText, "const timeout = 30")
	assert.NotContains(t, mod.SourceText, "ListenAndServe")
}

func TestSegment_GoSyntaxErrorStillSegmentsPartial(t *testing.T) {
	text := `package broken

func ok() int { return 1 }

func bad( {
`
	chunks, err := New().Segment(source.File{Path: "b.go", Text: text, Language: "go"})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestSegment_TypeScript(t *testing.T) {
	text := `import { api } from "./api";

export class Session {
  token: string;
}

export async function login(user: string) {
  return api.post("/login", { user });
}
`
	named := byName(segment(t, "web/session.ts", "typescript", text))

	require.Contains(t, named, "Session")
	require.Contains(t, named, "login")
	assert.Equal(t, types.ChunkClass, named["Session"].Kind)
	assert.Equal(t, types.ChunkFunction, named["login"].Kind)
	assert.Contains(t, named["session"].SourceText, "import")
}

func TestSegment_Ruby(t *testing.T) {
	text := `require "net/http"

RETRIES = 3

class Client
  def get(url)
    Net::HTTP.get(URI(url))
  end

  def self.default
    new
  end
end

def fetch(url)
  Client.default.get(url)
end
`
	named := byName(segment(t, "lib/client.rb", "ruby", text))

	require.Contains(t, named, "client")
	require.Contains(t, named, "Client")
	require.Contains(t, named, "Client.get")
	require.Contains(t, named, "Client.self.default")
	require.Contains(t, named, "fetch")

	mod := named["client"]
	assert.Equal(t, types.ChunkModule, mod.Kind)
	assert.Contains(t, mod.SourceText, `require "net/http"`)
	assert.Contains(t, mod.SourceText, "RETRIES = 3")
	assert.NotContains(t, mod.SourceText, "def get")

	cls := named["Client"]
	assert.Equal(t, types.ChunkClass, cls.Kind)
	assert.Equal(t, 5, cls.StartLine)
	assert.Equal(t, 13, cls.EndLine)
	assert.NotContains(t, cls.SourceText, "def get")

	get := named["Client.get"]
	assert.Equal(t, types.ChunkFunction, get.Kind)
	assert.Equal(t, "Client", get.ParentSymbol)
	assert.Contains(t, get.SourceText, "Net::HTTP.get")

	assert.Equal(t, "", named["fetch"].ParentSymbol)
}

func TestSegment_RubyControlBlocksKeepTheirEnds(t *testing.T) {
	text := `module Jobs
  def run(items)
    items.each do |item|
      if item.ready?
        item.start
      end
    end
  end
end
`
	named := byName(segment(t, "jobs.rb", "ruby", text))

	require.Contains(t, named, "Jobs")
	require.Contains(t, named, "Jobs.run")

	run := named["Jobs.run"]
	assert.Equal(t, 2, run.StartLine)
	assert.Equal(t, 8, run.EndLine, "inner do and if blocks must not close the method")
	assert.Equal(t, 9, named["Jobs"].EndLine)
	assert.Contains(t, run.SourceText, "item.start")
}

func TestSegment_RubyUnterminatedDefStillSegments(t *testing.T) {
	text := `def broken(arg)
  arg.call
`
	named := byName(segment(t, "bad.rb", "ruby", text))

	require.Contains(t, named, "broken")
	assert.Equal(t, 2, named["broken"].EndLine)
}

func TestSegment_Markdown(t *testing.T) {
	chunks := segment(t, "README.md", "markdown", "# Project\n\nDocs here.\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkModule, chunks[0].Kind)
	assert.Equal(t, "README", chunks[0].SymbolName)
}

func TestSegment_UnsupportedLanguage(t *testing.T) {
	_, err := New().Segment(source.File{Path: "x.lisp", Text: "(defun f ())", Language: "lisp"})
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestSegment_EmptyFile(t *testing.T) {
	chunks, err := New().Segment(source.File{Path: "e.py", Text: "\n\n", Language: "python"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSegment_DeterministicIDsAcrossEdits(t *testing.T) {
	v1 := "def handler(x):\n    return x\n"
	v2 := "# moved\n\n\ndef handler(x):\n    return x + 1\n"

	c1 := byName(segment(t, "h.py", "python", v1))["handler"]
	c2 := byName(segment(t, "h.py", "python", v2))["handler"]

	assert.Equal(t, c1.ID, c2.ID)
	assert.NotEqual(t, c1.ContentHash, c2.ContentHash)
}

func TestSegment_LargeFileFallsBackToWindows(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&sb, "value_%d = %d\n", i, i)
	}

	chunks := segment(t, "data/constants.py", "python", sb.String())
	require.Len(t, chunks, 3)

	for _, c := range chunks {
		assert.Equal(t, types.ChunkModule, c.Kind)
	}
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 200, chunks[0].EndLine)
	assert.Equal(t, 161, chunks[1].StartLine)
	assert.Equal(t, 321, chunks[2].StartLine)
	assert.Contains(t, chunks[1].SourceText, "value_161 = 161")
	assert.Contains(t, chunks[0].SourceText, "value_161 = 161", "windows overlap")
}
