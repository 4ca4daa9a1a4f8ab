package segmenter

import (
	"regexp"
	"strings"

	"github.com/kestrelhq/coderag/pkg/types"
)

// rubyDefRe matches a def/class/module header and captures the keyword
// and name. Method names may carry self., ?, ! or = suffixes; constants
// may be namespaced with ::.
var rubyDefRe = regexp.MustCompile(`^\s*(def|class|module)\s+((?:self\.)?[A-Za-z_][A-Za-z0-9_]*(?:::[A-Za-z_][A-Za-z0-9_]*)*[?!=]?)`)

// Non-definition openers that consume an end: leading control keywords
// and trailing do blocks.
var (
	rubyBlockKeywordRe = regexp.MustCompile(`^\s*(if|unless|while|until|case|begin|for)\b`)
	rubyDoTailRe       = regexp.MustCompile(`\bdo(\s*\|[^|]*\|)?\s*$`)
	rubyEndRe          = regexp.MustCompile(`^end\b`)
	rubyInlineEndRe    = regexp.MustCompile(`;\s*end\s*$`)
)

// rubyFrame tracks one pending end keyword. Only definition frames
// carry an index into defs; control-flow blocks are anonymous.
type rubyFrame struct {
	index int
	named bool
	name  string
}

// scanRuby extracts definition spans from Ruby source by pairing
// def/class/module headers with their end keywords. Control-flow
// blocks that also close with end are tracked anonymously so they do
// not steal a definition's terminator. Like the Python scan, this
// finds boundaries and names; it is not a grammar.
func scanRuby(lines []string) []definition {
	var defs []definition
	var stack []rubyFrame

	for i, line := range lines {
		ln := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := rubyDefRe.FindStringSubmatch(line); m != nil {
			kind := types.ChunkFunction
			if m[1] != "def" {
				kind = types.ChunkClass
			}
			def := definition{
				Kind:      kind,
				Name:      m[2],
				Parent:    rubySymbolPath(stack),
				StartLine: ln,
				EndLine:   ln,
			}
			defs = append(defs, def)
			// def foo; end on one line never opens a frame.
			if rubyInlineEndRe.MatchString(trimmed) {
				continue
			}
			stack = append(stack, rubyFrame{index: len(defs) - 1, named: true, name: m[2]})
			continue
		}

		if rubyEndRe.MatchString(trimmed) {
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.named {
					defs[top.index].EndLine = ln
				}
			}
			continue
		}

		if rubyBlockKeywordRe.MatchString(line) || rubyDoTailRe.MatchString(trimmed) {
			stack = append(stack, rubyFrame{})
		}
	}

	// Unterminated frames run to the last content line.
	for _, f := range stack {
		if f.named {
			defs[f.index].EndLine = lastContentLine(lines, defs[f.index].EndLine, len(lines))
		}
	}
	return defs
}

func rubySymbolPath(stack []rubyFrame) string {
	var parts []string
	for _, f := range stack {
		if f.named {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ".")
}
