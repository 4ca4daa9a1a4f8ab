package segmenter

import (
	"regexp"
	"strings"

	"github.com/kestrelhq/coderag/pkg/types"
)

// Brace-language scanning is intentionally shallow: top-level boundaries
// and symbol names only, no grammar. Nested definitions stay inside
// their enclosing top-level chunk.
var braceDefRes = []struct {
	re   *regexp.Regexp
	kind types.ChunkKind
}{
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`), types.ChunkClass},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)`), types.ChunkFunction},
	{regexp.MustCompile(`^\s*(?:pub(?:\([a-z]+\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_][A-Za-z0-9_]*)`), types.ChunkFunction},
	{regexp.MustCompile(`^\s*(?:pub(?:\([a-z]+\))?\s+)?(?:struct|enum|trait)\s+([A-Za-z_][A-Za-z0-9_]*)`), types.ChunkClass},
	{regexp.MustCompile(`^\s*(?:public|private|protected)\s+(?:static\s+)?(?:final\s+)?(?:abstract\s+)?(?:class|interface|enum)\s+([A-Za-z_$][A-Za-z0-9_$]*)`), types.ChunkClass},
	{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][A-Za-z0-9_$]*)`), types.ChunkClass},
}

// scanBraces extracts top-level definition spans from brace-delimited
// languages by counting braces from a matched header until depth
// returns to its starting level.
func scanBraces(lines []string) []definition {
	var defs []definition

	depth := 0
	open := -1 // index into defs of the definition being tracked
	var openDepth int

	for i, line := range lines {
		ln := i + 1

		if open == -1 && depth == 0 {
			for _, cand := range braceDefRes {
				m := cand.re.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				start := ln
				// Attach immediately preceding attribute/annotation lines.
				for j := i - 1; j >= 0; j-- {
					dt := strings.TrimSpace(lines[j])
					if strings.HasPrefix(dt, "#[") || strings.HasPrefix(dt, "@") {
						start = j + 1
						continue
					}
					break
				}
				defs = append(defs, definition{
					Kind:      cand.kind,
					Name:      m[1],
					StartLine: start,
					EndLine:   ln,
				})
				open = len(defs) - 1
				openDepth = depth
				break
			}
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}

		if open != -1 {
			defs[open].EndLine = ln
			// A header without a body on the same or a following line,
			// e.g. "struct Unit;", closes on the semicolon.
			if depth == openDepth {
				closed := strings.Contains(line, "}") || strings.Contains(line, ";")
				if closed {
					open = -1
				}
			}
		}
	}

	return defs
}
