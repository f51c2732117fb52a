package imagecache

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherInvalidatesOnRemove(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "w.png", 2, 2, color.White)
	cache := New(dir, nil)
	if _, err := cache.Load("/uploads/w.png"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan string, 1)
	watcher := NewWatcher(cache, nil)
	watcher.OnChange = func(docPath string) { changed <- docPath }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Close()

	if err := os.Remove(filepath.Join(dir, "w.png")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	select {
	case got := <-changed:
		if got != "/uploads/w.png" {
			t.Errorf("OnChange path = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected invalidation after remove")
	}
	if _, ok := cache.Get("/uploads/w.png"); ok {
		t.Error("entry still cached")
	}
}

func TestWatcherNil(t *testing.T) {
	var w *Watcher
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
