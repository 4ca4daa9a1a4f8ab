// Package source provides the file-system boundary of the engine: it
// turns a repository tree into the sequence of (path, text, language)
// tuples the ingestion pipeline consumes, and can watch the tree for
// changes.
package source

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one unit of input to the segmenter.
type File struct {
	Path     string // relative to the walk root, forward slashes
	Text     string
	Language string
}

// WalkConfig controls file discovery.
type WalkConfig struct {
	// Exclude holds doublestar glob patterns matched against relative
	// file paths, e.g. "**/*_test.go" or "migrations/**".
	Exclude []string

	// ExcludeDirs lists directory names pruned wherever they appear.
	// The defaults (vendor, node_modules, .git, ...) always apply.
	ExcludeDirs []string

	// MaxFileBytes skips files larger than this. Zero means 2 MiB.
	MaxFileBytes int64

	// IncludeReadme emits the root README.md as a documentation file.
	IncludeReadme bool
}

const defaultMaxFileBytes = 2 << 20

// defaultExcludeDirs are pruned regardless of configuration.
var defaultExcludeDirs = map[string]bool{
	".git": true, ".venv": true, "venv": true, "node_modules": true,
	"dist": true, "build": true, "__pycache__": true, "vendor": true,
}

// languageByExt maps file extensions to language identifiers. Files with
// unknown extensions are not emitted.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".md":   "markdown",
}

// Walk yields the indexable files under root, lazily. Each iteration
// reads one file from disk, so the sequence is restartable: a consumer
// can stop and re-walk from scratch at any point.
func Walk(root string, cfg WalkConfig) iter.Seq2[File, error] {
	maxBytes := cfg.maxFileBytes()

	excludeDirs := make(map[string]bool, len(defaultExcludeDirs)+len(cfg.ExcludeDirs))
	for name := range defaultExcludeDirs {
		excludeDirs[name] = true
	}
	for _, name := range cfg.ExcludeDirs {
		excludeDirs[name] = true
	}

	return func(yield func(File, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if rel == "." {
					return nil
				}
				if strings.HasPrefix(d.Name(), ".") || excludeDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}

			lang, ok := cfg.admits(rel)
			if !ok {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil || info.Size() > maxBytes {
				return nil
			}

			text, readErr := os.ReadFile(path)
			if readErr != nil {
				// Keep the path so the consumer knows which file the
				// error belongs to.
				if !yield(File{Path: rel, Language: lang}, fmt.Errorf("read %s: %w", rel, readErr)) {
					return filepath.SkipAll
				}
				return nil
			}

			if !yield(File{Path: rel, Text: string(text), Language: lang}, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(File{}, err)
		}
	}
}

// LanguageForPath returns the language identifier for a file path, or
// empty when the extension is not indexable.
func LanguageForPath(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// admits applies the discovery rules shared by the walker and the
// watcher: known language, README-only markdown, exclude globs.
func (cfg WalkConfig) admits(rel string) (string, bool) {
	lang := LanguageForPath(rel)
	if lang == "" {
		return "", false
	}
	if lang == "markdown" && !(cfg.IncludeReadme && strings.EqualFold(filepath.Base(rel), "README.md")) {
		return "", false
	}
	if matchesAny(cfg.Exclude, rel) {
		return "", false
	}
	return lang, true
}

func (cfg WalkConfig) maxFileBytes() int64 {
	if cfg.MaxFileBytes <= 0 {
		return defaultMaxFileBytes
	}
	return cfg.MaxFileBytes
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
