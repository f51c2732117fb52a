// Package imagecache memoizes decoded images by their document path.
package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"

	"github.com/haasonsaas/canvasd/internal/observability"
)

// PathPrefix is the document-path prefix of files in the uploads root.
const PathPrefix = "/uploads/"

// ErrBadPath is returned for document paths outside the uploads root.
var ErrBadPath = errors.New("imagecache: path outside uploads root")

// Entry is one decoded image. Its PNG encoding is produced on first use and
// reused by every later render.
type Entry struct {
	Image  image.Image
	Format string

	pngOnce sync.Once
	png     []byte
	pngErr  error
}

// PNG returns the image encoded as an 8-bit NRGBA PNG.
func (e *Entry) PNG() ([]byte, error) {
	e.pngOnce.Do(func() {
		src := e.Image
		if _, ok := src.(*image.NRGBA); !ok {
			b := src.Bounds()
			dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
			src = dst
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, src); err != nil {
			e.pngErr = fmt.Errorf("encode png: %w", err)
			return
		}
		e.png = buf.Bytes()
	})
	return e.png, e.pngErr
}

// Cache maps document paths to decoded images. It never evicts on its own;
// entries leave only through Invalidate and Purge.
type Cache struct {
	root    string
	logger  *slog.Logger
	metrics *observability.Metrics
	decoder Decoder

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates a cache for files under root.
func New(root string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		root:    root,
		logger:  logger.With("component", "imagecache"),
		entries: make(map[string]*Entry),
	}
}

func (c *Cache) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// SetMaxPixels bounds the size of images Load decodes. Zero restores
// DefaultMaxPixels.
func (c *Cache) SetMaxPixels(n int64) {
	c.decoder = Decoder{MaxPixels: n}
}

// Root returns the uploads directory.
func (c *Cache) Root() string {
	return c.root
}

// Get returns the cached entry for docPath without touching the filesystem.
func (c *Cache) Get(docPath string) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[docPath]
	c.mu.RUnlock()
	return entry, ok
}

// Load returns the entry for docPath, reading and decoding the file on a
// miss. Failed decodes are not cached.
func (c *Cache) Load(docPath string) (*Entry, error) {
	if entry, ok := c.Get(docPath); ok {
		c.metrics.CacheLookup(true)
		return entry, nil
	}
	c.metrics.CacheLookup(false)

	file, err := FilePath(c.root, docPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file) // #nosec G304 -- confined to the uploads root by FilePath
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", docPath, err)
	}
	img, format, err := c.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", docPath, err)
	}

	entry := &Entry{Image: img, Format: format}
	c.mu.Lock()
	if existing, ok := c.entries[docPath]; ok {
		entry = existing
	} else {
		c.entries[docPath] = entry
	}
	c.mu.Unlock()
	return entry, nil
}

// Invalidate drops the entry for docPath.
func (c *Cache) Invalidate(docPath string) {
	c.mu.Lock()
	_, ok := c.entries[docPath]
	delete(c.entries, docPath)
	c.mu.Unlock()
	if ok {
		c.logger.Debug("image invalidated", "path", docPath)
	}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DocPath returns the document path of a file name in the uploads root.
func DocPath(name string) string {
	return PathPrefix + filepath.Base(name)
}

// FilePath maps a document path such as "/uploads/a.png" to its file under
// root, rejecting anything that would escape root.
func FilePath(root, docPath string) (string, error) {
	if !strings.HasPrefix(docPath, PathPrefix) {
		return "", fmt.Errorf("%w: %q", ErrBadPath, docPath)
	}
	rel := path.Clean(strings.TrimPrefix(docPath, PathPrefix))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.Contains(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadPath, docPath)
	}
	return filepath.Join(root, rel), nil
}
