package source

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind distinguishes the two actions a watcher consumer takes.
type ChangeKind int

const (
	ChangeWrite ChangeKind = iota
	ChangeRemove
)

// Change is a debounced file-system event for one indexable file.
type Change struct {
	Kind ChangeKind
	File File // Text is empty for ChangeRemove
}

// Watcher emits debounced changes for indexable files under a root,
// so a consumer can re-reconcile edited files and delete removed ones.
type Watcher struct {
	root     string
	cfg      WalkConfig
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for root. Events for the same path inside
// the debounce window collapse into one change.
func NewWatcher(root string, cfg WalkConfig, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, cfg: cfg, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is done, sending debounced changes to out.
// The channel is not closed by Watch; the caller owns it.
func (w *Watcher) Watch(ctx context.Context, out chan<- Change) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}

	pending := make(map[string]ChangeKind)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		for rel, kind := range pending {
			change := Change{Kind: kind, File: File{Path: rel, Language: LanguageForPath(rel)}}
			if kind == ChangeWrite {
				text, readErr := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
				if readErr != nil {
					w.logger.Warn("skipping unreadable changed file", "path", rel, "err", readErr)
					continue
				}
				if int64(len(text)) > w.cfg.maxFileBytes() {
					w.logger.Warn("skipping oversized changed file", "path", rel, "bytes", len(text))
					continue
				}
				change.File.Text = string(text)
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
		clear(pending)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(w.root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			// New directories need watching before their files show up.
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = w.addRecursive(fsw, ev.Name)
					continue
				}
			}

			if _, ok := w.cfg.admits(rel); !ok {
				continue
			}

			switch {
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				pending[rel] = ChangeRemove
			case ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create):
				pending[rel] = ChangeWrite
			default:
				continue
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			flush()

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", werr)
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || defaultExcludeDirs[name]) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
