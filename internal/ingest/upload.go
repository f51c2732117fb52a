package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/imagecache"
	"github.com/haasonsaas/canvasd/internal/observability"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// stagedSuffix ends the hidden file names Save writes.
const stagedSuffix = ".upload"

// Uploader stores and verifies images received as multipart uploads.
type Uploader struct {
	dir      string
	maxBytes int64
	decoder  imagecache.Decoder
	cache    Invalidator
	mirror   ObjectMirror
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Staged is an upload written beside its target under a hidden name. It
// replaces the target only once Accept has verified it.
type Staged struct {
	// Path is the document path the upload will take.
	Path string

	file    string
	staging string
}

// NewUploader creates an uploader for dir. cache may be nil.
func NewUploader(dir string, maxBytes int64, cache Invalidator, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Uploader{
		dir:      dir,
		maxBytes: maxBytes,
		cache:    cache,
		logger:   logger.With("component", "ingest.upload"),
	}
}

func (u *Uploader) SetMetrics(metrics *observability.Metrics) { u.metrics = metrics }

func (u *Uploader) SetMirror(m ObjectMirror) { u.mirror = m }

// SetMaxPixels bounds width*height of accepted images. Zero means
// imagecache.DefaultMaxPixels.
func (u *Uploader) SetMaxPixels(n int64) { u.decoder = imagecache.Decoder{MaxPixels: n} }

// MaxBytes is the largest accepted upload.
func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// Save stages r in the uploads root. The target is named after name when one
// is given, sanitized to a plain base name; otherwise it gets a random name
// keeping the extension of original. Nothing visible changes until Accept.
// Bodies over the byte limit fail with canvas.ErrInvalidImageFile.
func (u *Uploader) Save(name, original string, r io.Reader) (Staged, error) {
	fileName, err := uploadName(name, original)
	if err != nil {
		return Staged{}, err
	}
	data, err := readLimited(r, u.maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			u.metrics.Ingest("upload", err)
			return Staged{}, fmt.Errorf("%w: %w", canvas.ErrInvalidImageFile, err)
		}
		return Staged{}, fmt.Errorf("read upload: %w", err)
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return Staged{}, fmt.Errorf("create uploads dir: %w", err)
	}

	tmp, err := os.CreateTemp(u.dir, "."+fileName+".*"+stagedSuffix)
	if err != nil {
		return Staged{}, fmt.Errorf("stage upload: %w", err)
	}
	staging := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(staging) //nolint:errcheck
		return Staged{}, fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(staging) //nolint:errcheck
		return Staged{}, fmt.Errorf("stage upload: %w", err)
	}
	return Staged{
		Path:    imagecache.DocPath(fileName),
		file:    filepath.Join(u.dir, fileName),
		staging: staging,
	}, nil
}

// Accept verifies a staged upload and moves it over its target. A staged
// file that does not decode is removed and reported as
// canvas.ErrInvalidImageFile; the target, if any, is left as it was. Any
// cached decode of the path is dropped, so a replaced file shows its new
// content.
func (u *Uploader) Accept(ctx context.Context, s Staged) (Result, error) {
	res, err := u.accept(ctx, s)
	u.metrics.Ingest("upload", err)
	return res, err
}

func (u *Uploader) accept(ctx context.Context, s Staged) (Result, error) {
	if s.staging == "" {
		return Result{}, fmt.Errorf("%w: nothing staged for %q", canvas.ErrInvalidImageFile, s.Path)
	}
	defer func() {
		if err := os.Remove(s.staging); err != nil && !errors.Is(err, os.ErrNotExist) {
			u.logger.WarnContext(ctx, "failed to remove staged upload", "path", s.Path, "error", err)
		}
	}()

	data, err := os.ReadFile(s.staging) // #nosec G304 -- created by Save inside the uploads root
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidImageFile, err)
	}
	format, width, height, err := inspect(u.decoder, data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidImageFile, err)
	}
	if err := os.Rename(s.staging, s.file); err != nil {
		return Result{}, fmt.Errorf("store upload: %w", err)
	}

	if u.cache != nil {
		u.cache.Invalidate(s.Path)
	}
	if err := mirrorUpload(ctx, u.mirror, filepath.Base(s.file), data, format); err != nil {
		u.logger.WarnContext(ctx, "upload mirror failed", "path", s.Path, "error", err)
	}
	u.logger.InfoContext(ctx, "image uploaded", "path", s.Path, "format", format, "bytes", len(data), "width", width, "height", height)
	return Result{Path: s.Path, File: s.file, Format: format, Width: width, Height: height}, nil
}

// uploadName picks the stored file name for an upload.
func uploadName(name, original string) (string, error) {
	if strings.TrimSpace(name) != "" {
		clean := sanitizeName(name)
		if clean == "" {
			return "", fmt.Errorf("%w: invalid file name %q", canvas.ErrInvalidInput, name)
		}
		return clean, nil
	}
	ext := strings.ToLower(filepath.Ext(sanitizeName(original)))
	return uuid.NewString() + ext, nil
}

// sanitizeName reduces s to a base name of safe characters. It returns ""
// when nothing usable is left.
func sanitizeName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), `\`, "/")
	s = filepath.Base(s)
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.TrimLeft(s, ".")
	if s == "" || s == "_" {
		return ""
	}
	return s
}
