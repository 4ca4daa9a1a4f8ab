package segmenter

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/kestrelhq/coderag/pkg/types"
)

// scanGo extracts definition spans from a Go source file using the
// standard AST. Functions and methods become function chunks; type
// declarations become class chunks; methods carry their receiver type
// as the parent symbol. Everything else (package clause, imports,
// consts, vars) stays in the module chunk.
func scanGo(path, text string) ([]definition, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, text, parser.ParseComments)
	if file == nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParse, path, err)
	}
	// A partial AST from a file with syntax errors is still usable;
	// whatever declarations parsed cleanly get indexed.

	var defs []definition

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			def := definition{
				Kind:      types.ChunkFunction,
				Name:      d.Name.Name,
				StartLine: declStartLine(fset, d, d.Doc),
				EndLine:   fset.Position(d.End()).Line,
				Doc:       docText(d.Doc),
			}
			if d.Recv != nil && len(d.Recv.List) > 0 {
				def.Parent = receiverType(d.Recv.List[0].Type)
			}
			defs = append(defs, def)

		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				doc := ts.Doc
				start := fset.Position(ts.Pos()).Line
				// Single-spec decls carry the doc on the GenDecl and
				// should include the "type" keyword line.
				if len(d.Specs) == 1 {
					doc = d.Doc
					start = declStartLine(fset, d, d.Doc)
				} else if ts.Doc != nil {
					start = fset.Position(ts.Doc.Pos()).Line
				}
				defs = append(defs, definition{
					Kind:      types.ChunkClass,
					Name:      ts.Name.Name,
					StartLine: start,
					EndLine:   fset.Position(ts.End()).Line,
					Doc:       docText(doc),
				})
			}
		}
	}

	return defs, nil
}

// declStartLine includes the doc comment in the definition span.
func declStartLine(fset *token.FileSet, decl ast.Node, doc *ast.CommentGroup) int {
	if doc != nil {
		return fset.Position(doc.Pos()).Line
	}
	return fset.Position(decl.Pos()).Line
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// receiverType extracts the receiver type name, dereferencing pointers
// and dropping type parameters.
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	default:
		return ""
	}
}
