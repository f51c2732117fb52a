// Package render turns a canvas document into its PNG preview and PDF export.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/canvasd/internal/backoff"
	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/imagecache"
	"github.com/haasonsaas/canvasd/internal/observability"
)

// DefaultRetryDelay is the pause before the single retry of a failed render.
const DefaultRetryDelay = 100 * time.Millisecond

// ImageSource resolves document image paths to decoded images.
type ImageSource interface {
	Load(docPath string) (*imagecache.Entry, error)
}

// ArtifactWriter persists rendered artifacts.
type ArtifactWriter interface {
	WritePreview(ctx context.Context, data []byte) error
	WriteExport(ctx context.Context, data []byte) error
}

// Artifacts holds the encoded outputs of one render.
type Artifacts struct {
	PNG []byte
	PDF []byte
}

// Options tune a Pipeline.
type Options struct {
	// RetryDelay is the wait before retrying a failed render of a document
	// with images. Zero uses DefaultRetryDelay.
	RetryDelay time.Duration
	// Creator is written into the PDF metadata.
	Creator string
}

// Pipeline renders documents. It implements canvas.Renderer.
type Pipeline struct {
	images  ImageSource
	store   ArtifactWriter
	fonts   *Fonts
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a pipeline. store may be nil when only Paint is used.
func New(images ImageSource, store ArtifactWriter, fonts *Fonts, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Pipeline{
		images: images,
		store:  store,
		fonts:  fonts,
		opts:   opts,
		logger: logger.With("component", "render"),
	}
}

func (p *Pipeline) SetMetrics(metrics *observability.Metrics) {
	p.metrics = metrics
}

func (p *Pipeline) SetTracer(tracer *observability.Tracer) {
	p.tracer = tracer
}

// Render paints doc and replaces the stored preview and export. A document
// containing images gets one retry after the configured delay; any failure
// that survives is returned wrapped in canvas.ErrRenderFailed.
func (p *Pipeline) Render(ctx context.Context, doc canvas.Document) error {
	if !doc.Initialized() {
		return canvas.ErrNotInitialized
	}
	ctx, span := p.tracer.Start(ctx, "render", "elements", len(doc.Elements), "width", doc.Width, "height", doc.Height)
	defer span.End()

	start := time.Now()
	attempts := 1
	if doc.HasImages() {
		attempts = 2
	}
	result, err := backoff.Do(ctx, backoff.Options{
		MaxAttempts: attempts,
		Policy:      backoff.Fixed(p.opts.RetryDelay),
		OnRetry: func(attempt int, err error) {
			p.metrics.RenderRetried()
			p.logger.WarnContext(ctx, "render failed, retrying", "attempt", attempt, "delay", p.opts.RetryDelay, "error", err)
		},
	}, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, p.renderOnce(ctx, doc)
	})

	status := "success"
	if err != nil {
		status = "failed"
		observability.RecordError(span, err)
		p.logger.ErrorContext(ctx, "render failed", "attempts", result.Attempts, "error", err)
		err = fmt.Errorf("%w: %v", canvas.ErrRenderFailed, err)
	} else if result.Attempts > 1 {
		status = "retried"
	}
	p.metrics.RenderCompleted(status, time.Since(start))
	if err == nil {
		p.logger.DebugContext(ctx, "render complete", "elements", len(doc.Elements), "attempts", result.Attempts, "duration", time.Since(start))
	}
	return err
}

// Paint produces the PNG and PDF bytes for doc without writing them.
func (p *Pipeline) Paint(ctx context.Context, doc canvas.Document) (Artifacts, error) {
	if !doc.Initialized() {
		return Artifacts{}, canvas.ErrNotInitialized
	}
	images := p.preload(ctx, doc)

	_, span := p.tracer.Start(ctx, "render.paint")
	defer span.End()

	raster := newRasterSurface(doc.Width, doc.Height)
	if err := paint(raster, doc, images, p.fonts); err != nil {
		raster.dc.Close()
		observability.RecordError(span, err)
		return Artifacts{}, fmt.Errorf("paint preview: %w", err)
	}
	pngBytes, err := raster.Encode()
	if err != nil {
		observability.RecordError(span, err)
		return Artifacts{}, err
	}

	pdfs := newPDFSurface(doc.Width, doc.Height, p.opts.Creator)
	if err := paint(pdfs, doc, images, p.fonts); err != nil {
		observability.RecordError(span, err)
		return Artifacts{}, fmt.Errorf("paint export: %w", err)
	}
	pdfBytes, err := pdfs.Encode()
	if err != nil {
		observability.RecordError(span, err)
		return Artifacts{}, err
	}
	return Artifacts{PNG: pngBytes, PDF: pdfBytes}, nil
}

func (p *Pipeline) renderOnce(ctx context.Context, doc canvas.Document) error {
	if p.store == nil {
		return errors.New("render: no artifact store configured")
	}
	out, err := p.Paint(ctx, doc)
	if err != nil {
		return err
	}
	if err := p.store.WritePreview(ctx, out.PNG); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	if err := p.store.WriteExport(ctx, out.PDF); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// preload resolves every referenced image before painting starts. Images
// that cannot be read or decoded are logged and left out of the map.
func (p *Pipeline) preload(ctx context.Context, doc canvas.Document) map[string]*imagecache.Entry {
	paths := doc.ImagePaths()
	images := make(map[string]*imagecache.Entry, len(paths))
	if len(paths) == 0 || p.images == nil {
		return images
	}
	_, span := p.tracer.Start(ctx, "render.preload", "images", len(paths))
	defer span.End()

	for _, path := range paths {
		entry, err := p.images.Load(path)
		if err != nil {
			p.logger.WarnContext(ctx, "image unavailable, drawing placeholder", "path", path, "error", err)
			continue
		}
		images[path] = entry
	}
	return images
}
