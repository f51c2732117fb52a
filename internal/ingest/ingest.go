// Package ingest brings images into the uploads root, either fetched from a
// URL or received as a multipart upload, and sweeps files no longer in use.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/haasonsaas/canvasd/internal/artifacts"
	"github.com/haasonsaas/canvasd/internal/imagecache"
)

// Default limits.
const (
	DefaultMaxBytes = 20 * 1024 * 1024 // 20MiB
)

// ErrTooLarge is returned when an image body exceeds the byte limit. Callers
// see it wrapped in the canvas error for their source.
var ErrTooLarge = errors.New("ingest: image too large")

// Result describes an image stored in the uploads root.
type Result struct {
	// Path is the document path, e.g. "/uploads/url-image-1700000000000.png".
	Path string
	// File is the location on disk.
	File   string
	Format string
	Width  int
	Height int
}

// Invalidator drops cached decodes for a document path.
type Invalidator interface {
	Invalidate(docPath string)
}

// ObjectMirror copies stored uploads to object storage.
type ObjectMirror interface {
	artifacts.Mirror
	Delete(ctx context.Context, name string) error
}

// contentTypeExt maps accepted image content types to file extensions.
var contentTypeExt = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/pjpeg":   "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

// extForContentType returns the file extension for an accepted image
// content type, ignoring parameters such as charset.
func extForContentType(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	ext, ok := contentTypeExt[strings.ToLower(mediaType)]
	return ext, ok
}

// extForFormat returns the file extension stored for a decoded format.
func extForFormat(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// inspect checks that data is a decodable image within dec's pixel budget
// and reports its format and natural size. The header is checked before any
// pixels are decoded.
func inspect(dec imagecache.Decoder, data []byte) (string, int, int, error) {
	cfg, format, err := dec.DecodeConfig(data)
	if err != nil {
		return "", 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", 0, 0, fmt.Errorf("image has no size")
	}
	// A readable header is not enough; the pixel data must decode too.
	if _, _, err := dec.Decode(data); err != nil {
		return "", 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}

func mirrorUpload(ctx context.Context, m ObjectMirror, name string, data []byte, format string) error {
	if m == nil {
		return nil
	}
	_, err := m.Put(ctx, "uploads/"+name, bytes.NewReader(data), artifacts.PutOptions{
		MimeType: mimeForFormat(format),
	})
	return err
}

func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case imagecache.FormatSVG:
		return "image/svg+xml"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + format
	}
}

// readLimited reads at most limit bytes from r and fails when more remain.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}
