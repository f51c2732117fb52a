package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/canvasd/internal/canvas"
)

// LocalStore keeps the preview and export at fixed paths. Every write
// replaces the previous file atomically, so readers never see a partial one.
type LocalStore struct {
	mu          sync.Mutex
	previewPath string
	exportPath  string
	mirror      Mirror
	logger      *slog.Logger
}

// NewLocalStore creates the parent directories of both paths.
func NewLocalStore(previewPath, exportPath string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range []string{previewPath, exportPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact directory: %w", err)
		}
	}
	return &LocalStore{
		previewPath: previewPath,
		exportPath:  exportPath,
		logger:      logger.With("component", "artifacts"),
	}, nil
}

// SetMirror sends a copy of every written artifact to m. Mirror failures are
// logged and never fail the local write.
func (s *LocalStore) SetMirror(m Mirror) {
	s.mu.Lock()
	s.mirror = m
	s.mu.Unlock()
}

func (s *LocalStore) PreviewPath() string { return s.previewPath }

func (s *LocalStore) ExportPath() string { return s.exportPath }

// WritePreview replaces the PNG preview.
func (s *LocalStore) WritePreview(ctx context.Context, data []byte) error {
	return s.write(ctx, s.previewPath, data, MimePNG)
}

// WriteExport replaces the PDF export.
func (s *LocalStore) WriteExport(ctx context.Context, data []byte) error {
	return s.write(ctx, s.exportPath, data, MimePDF)
}

// Preview returns the current PNG preview.
func (s *LocalStore) Preview(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readArtifact(s.previewPath)
}

// TakeExport returns the current PDF export and removes it, so each render
// is downloadable once.
func (s *LocalStore) TakeExport(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := readArtifact(s.exportPath)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(s.exportPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WarnContext(ctx, "failed to remove served export", "path", s.exportPath, "error", err)
	}
	return data, nil
}

func (s *LocalStore) write(ctx context.Context, target string, data []byte, mimeType string) error {
	s.mu.Lock()
	err := WriteFileAtomic(target, data)
	mirror := s.mirror
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if mirror != nil {
		ref, err := putBytes(ctx, mirror, filepath.Base(target), data, mimeType)
		if err != nil {
			s.logger.WarnContext(ctx, "artifact mirror failed", "path", target, "error", err)
		} else {
			s.logger.DebugContext(ctx, "artifact mirrored", "ref", ref)
		}
	}
	return nil
}

func readArtifact(p string) ([]byte, error) {
	data, err := os.ReadFile(p) // #nosec G304 -- fixed configured path
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", canvas.ErrNotFound, filepath.Base(p))
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temp file next to target, then renames it
// over target.
func WriteFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
