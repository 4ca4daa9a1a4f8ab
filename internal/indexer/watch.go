package indexer

import (
	"context"

	"github.com/kestrelhq/coderag/internal/source"
)

// Watch keeps the index converged while files change under root. It
// blocks until the context is cancelled. Edits re-reconcile just the
// touched file; removals purge it from the store and manifest.
func (idx *Indexer) Watch(ctx context.Context, root string) error {
	watcher := source.NewWatcher(root, idx.WalkConfig(), 0, idx.logger)

	changes := make(chan source.Change, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Watch(ctx, changes)
	}()

	for {
		select {
		case <-ctx.Done():
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case change := <-changes:
			idx.applyChange(ctx, change)
		}
	}
}

func (idx *Indexer) applyChange(ctx context.Context, change source.Change) {
	switch change.Kind {
	case source.ChangeRemove:
		if n, err := idx.DeleteFile(ctx, change.File.Path); err != nil {
			idx.logger.Warn("delete on change failed", "file", change.File.Path, "error", err)
		} else if n > 0 {
			idx.logger.Info("file removed from index", "file", change.File.Path, "chunks", n)
		}

	case source.ChangeWrite:
		res, err := idx.reconcileFile(ctx, change.File)
		if err != nil {
			idx.logger.Warn("reconcile on change failed", "file", change.File.Path, "error", err)
			return
		}
		if res.upserted > 0 || res.deleted > 0 {
			idx.logger.Info("file re-indexed",
				"file", change.File.Path, "upserted", res.upserted, "deleted", res.deleted)
		}
	}
}
