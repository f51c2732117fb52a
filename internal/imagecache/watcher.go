package imagecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when files in the uploads root change
// outside the ingestion paths, e.g. when an operator replaces a file.
type Watcher struct {
	cache  *Cache
	logger *slog.Logger

	// OnChange, when set, runs after an entry for a referenced path was
	// invalidated. It receives the document path.
	OnChange func(docPath string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the cache's uploads root.
func NewWatcher(cache *Cache, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cache: cache, logger: logger.With("component", "imagecache.watch")}
}

// Start begins watching. The loop ends when ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.cache == nil {
		return nil
	}
	if err := os.MkdirAll(w.cache.Root(), 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.cache.Root()); err != nil {
		_ = watcher.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.loop(ctx, watcher)
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			docPath := DocPath(evt.Name)
			if _, cached := w.cache.Get(docPath); !cached {
				continue
			}
			w.cache.Invalidate(docPath)
			w.logger.Info("upload changed on disk", "path", docPath, "op", evt.Op.String())
			if w.OnChange != nil {
				w.OnChange(docPath)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("uploads watch error", "error", err)
		}
	}
}
