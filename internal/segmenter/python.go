package segmenter

import (
	"regexp"
	"strings"

	"github.com/kestrelhq/coderag/pkg/types"
)

// pyDefRe matches a def/class header and captures indent, keyword, name.
var pyDefRe = regexp.MustCompile(`^(\s*)(async\s+def|def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// pyFrame tracks an open definition during the indentation scan.
type pyFrame struct {
	index  int // into the defs slice
	indent int
	name   string
}

// scanPython extracts definition spans from Python source using an
// indentation scan. It finds boundaries and symbol names only; it does
// not try to be a grammar. Files that a real parser would reject still
// segment on whatever def/class headers are present.
func scanPython(lines []string) []definition {
	var defs []definition
	var stack []pyFrame

	// closeFrames pops frames whose bodies ended before line ln: a frame
	// stays open only while lines are indented deeper than its header.
	closeFrames := func(indent int, ln int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			top := stack[len(stack)-1]
			defs[top.index].EndLine = lastContentLine(lines, defs[top.index].EndLine, ln-1)
			stack = stack[:len(stack)-1]
		}
	}

	for i, line := range lines {
		ln := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indent := indentWidth(line)

		m := pyDefRe.FindStringSubmatch(line)
		if m == nil {
			closeFrames(indent, ln)
			continue
		}

		closeFrames(indent, ln)

		kind := types.ChunkFunction
		if m[2] == "class" {
			kind = types.ChunkClass
		}

		start := ln
		// Attach immediately preceding decorator lines at the same indent.
		for j := i - 1; j >= 0; j-- {
			dt := strings.TrimSpace(lines[j])
			if strings.HasPrefix(dt, "@") && indentWidth(lines[j]) == indent {
				start = j + 1
				continue
			}
			break
		}

		def := definition{
			Kind:      kind,
			Name:      m[3],
			Parent:    symbolPath(stack),
			StartLine: start,
			EndLine:   ln,
		}
		defs = append(defs, def)
		stack = append(stack, pyFrame{index: len(defs) - 1, indent: indent, name: m[3]})
	}

	closeFrames(0, len(lines)+1)
	return defs
}

func symbolPath(stack []pyFrame) string {
	if len(stack) == 0 {
		return ""
	}
	parts := make([]string, len(stack))
	for i, f := range stack {
		parts[i] = f.name
	}
	return strings.Join(parts, ".")
}

// indentWidth counts leading whitespace, expanding tabs to 8 columns
// the way CPython's tokenizer does.
func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		default:
			return w
		}
	}
	return w
}

// lastContentLine walks hi down to the last non-blank line in
// [lo, hi], so trailing blank lines stay out of a definition's span.
func lastContentLine(lines []string, lo, hi int) int {
	if hi > len(lines) {
		hi = len(lines)
	}
	for hi > lo && strings.TrimSpace(lines[hi-1]) == "" {
		hi--
	}
	if hi < lo {
		return lo
	}
	return hi
}
