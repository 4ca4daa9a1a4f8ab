package segmenter

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kestrelhq/coderag/internal/source"
	"github.com/kestrelhq/coderag/pkg/types"
)

// Segmenter parses source files into semantic chunks.
//
// Containment rule: a definition chunk owns its own text minus the
// spans of its immediate child definitions, and the module chunk owns
// everything outside any definition span. No line of source is indexed
// twice. Decorators and attributes immediately preceding a definition
// belong to that definition's chunk.
type Segmenter struct {
	logger *slog.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new Segmenter instance
func New(opts ...Option) *Segmenter {
	s := &Segmenter{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// definition is a language-independent parsed definition span.
// Lines are 1-based and inclusive; StartLine includes attached
// decorators or attributes.
type definition struct {
	Kind      types.ChunkKind
	Name      string
	Parent    string // dotted parent symbol path, empty for top level
	StartLine int
	EndLine   int
	Doc       string
}

// Segment produces the ordered chunk sequence for one file. A file that
// cannot be parsed returns types.ErrParse; callers log a warning and
// skip the file rather than failing the run.
func (s *Segmenter) Segment(f source.File) ([]types.Chunk, error) {
	if strings.TrimSpace(f.Text) == "" {
		return nil, nil
	}

	lines := strings.Split(f.Text, "\n")

	var defs []definition
	var err error

	switch f.Language {
	case "go":
		defs, err = scanGo(f.Path, f.Text)
	case "python":
		defs = scanPython(lines)
	case "javascript", "typescript", "java", "rust":
		defs = scanBraces(lines)
	case "ruby":
		defs = scanRuby(lines)
	case "markdown":
		defs = nil // whole file becomes the module chunk
	default:
		return nil, fmt.Errorf("%w: unsupported language %q for %s", types.ErrParse, f.Language, f.Path)
	}
	if err != nil {
		return nil, err
	}

	return s.assemble(f, lines, defs), nil
}

// Files with no extractable definitions fall back to fixed line
// windows so very large scripts still index in retrievable pieces.
const (
	windowLines   = 200
	windowOverlap = 40
)

// assemble turns definition spans into chunks under the containment
// rule, using an owner index per line.
func (s *Segmenter) assemble(f source.File, lines []string, defs []definition) []types.Chunk {
	if len(defs) == 0 && len(lines) > windowLines {
		return s.windowChunks(f, lines)
	}
	// owner[i] is the index into defs of the innermost definition
	// covering line i+1, or -1 for module-level code.
	owner := make([]int, len(lines))
	for i := range owner {
		owner[i] = -1
	}
	for di, d := range defs {
		for ln := d.StartLine; ln <= d.EndLine && ln <= len(lines); ln++ {
			owner[ln-1] = di
		}
	}
	// Later defs are nested inside earlier ones when spans overlap, so
	// the second pass above already left the innermost index in place:
	// scanners emit parents before children.

	chunks := make([]types.Chunk, 0, len(defs)+1)

	// Module-level chunk: everything no definition owns.
	if mod := s.moduleChunk(f, lines, owner); mod != nil {
		chunks = append(chunks, *mod)
	}

	for di, d := range defs {
		var sb strings.Builder
		for ln := d.StartLine; ln <= d.EndLine && ln <= len(lines); ln++ {
			if owner[ln-1] != di {
				continue
			}
			sb.WriteString(lines[ln-1])
			sb.WriteByte('\n')
		}
		text := strings.TrimRight(sb.String(), "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		chunk := types.Chunk{
			Kind:         d.Kind,
			FilePath:     f.Path,
			SymbolName:   d.Name,
			ParentSymbol: d.Parent,
			StartLine:    d.StartLine,
			EndLine:      d.EndLine,
			SourceText:   text,
			Language:     f.Language,
			DocComment:   d.Doc,
		}
		chunk.ComputeID()
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
	}

	return chunks
}

func (s *Segmenter) moduleChunk(f source.File, lines []string, owner []int) *types.Chunk {
	var sb strings.Builder
	first, last := 0, 0
	for i, o := range owner {
		if o != -1 {
			continue
		}
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if first == 0 {
			first = i + 1
		}
		last = i + 1
		sb.WriteString(lines[i])
		sb.WriteByte('\n')
	}
	if first == 0 {
		return nil
	}

	chunk := types.Chunk{
		Kind:       types.ChunkModule,
		FilePath:   f.Path,
		SymbolName: moduleSymbol(f.Path),
		StartLine:  first,
		EndLine:    last,
		SourceText: strings.TrimRight(sb.String(), "\n"),
		Language:   f.Language,
	}
	chunk.ComputeID()
	chunk.ComputeContentHash()
	return &chunk
}

func (s *Segmenter) windowChunks(f source.File, lines []string) []types.Chunk {
	stride := windowLines - windowOverlap
	base := moduleSymbol(f.Path)

	var chunks []types.Chunk
	for start, n := 1, 1; start <= len(lines); start, n = start+stride, n+1 {
		end := start + windowLines - 1
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.TrimRight(strings.Join(lines[start-1:end], "\n"), "\n")
		if strings.TrimSpace(text) != "" {
			chunk := types.Chunk{
				Kind:       types.ChunkModule,
				FilePath:   f.Path,
				SymbolName: fmt.Sprintf("%s#%d", base, n),
				StartLine:  start,
				EndLine:    end,
				SourceText: text,
				Language:   f.Language,
			}
			chunk.ComputeID()
			chunk.ComputeContentHash()
			chunks = append(chunks, chunk)
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// moduleSymbol names the module-level chunk after the file itself.
func moduleSymbol(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
