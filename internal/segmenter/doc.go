// Package segmenter divides source files into semantic chunks for
// embedding and retrieval.
//
// Chunks are created at definition boundaries: one chunk per class or
// function definition, plus a module-level chunk for code outside any
// named definition. Nested definitions get their own chunks carrying
// the parent symbol path, and the parent/child relationship is
// re-derived fresh on every parse; chunk IDs never own one another.
//
// # Containment Rule
//
// No line of source is indexed twice. A definition chunk owns its text
// minus the spans of its immediate children, and the module chunk owns
// the rest of the file. Decorators and attributes immediately preceding
// a definition belong to the definition's chunk.
//
// # Languages
//
// Go files use the standard library AST. Python files use an
// indentation scan, and brace-delimited languages (JavaScript,
// TypeScript, Java, Rust) use a shallow header-and-brace scan. The
// scanners produce segmentation boundaries and symbol names only; they
// are not grammars, and a file they cannot handle is skipped with a
// warning rather than failing the ingestion run.
//
// # Basic Usage
//
//	s := segmenter.New()
//	chunks, err := s.Segment(source.File{
//	    Path: "src/auth.py", Text: text, Language: "python",
//	})
//	if errors.Is(err, types.ErrParse) {
//	    log.Printf("skipping %s: %v", path, err)
//	}
//
// Chunk IDs and content hashes are computed before return, so the
// output is ready for reconciliation against the index.
package segmenter
