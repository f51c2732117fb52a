package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/canvasd/internal/artifacts"
	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/imagecache"
	"github.com/haasonsaas/canvasd/internal/net/ssrf"
	"github.com/haasonsaas/canvasd/internal/observability"
)

// DefaultFetchTimeout bounds a whole URL fetch, body included.
const DefaultFetchTimeout = 15 * time.Second

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// MaxPixels bounds width*height of fetched images. Zero means
	// imagecache.DefaultMaxPixels.
	MaxPixels int64
	// BlockPrivateNetworks refuses URLs that name or resolve to loopback,
	// private or link-local addresses.
	BlockPrivateNetworks bool
	// Client overrides the HTTP client. Its Timeout is left alone.
	Client *http.Client
}

// Fetcher downloads remote images into the uploads root.
type Fetcher struct {
	dir       string
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	decoder   imagecache.Decoder
	guard     bool
	cache     Invalidator
	mirror    ObjectMirror
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	now       func() time.Time

	// mu serializes name allocation and the write that claims it.
	mu sync.Mutex
}

// NewFetcher creates a fetcher writing into dir. cache may be nil.
func NewFetcher(dir string, cache Invalidator, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "canvasd"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
		if cfg.BlockPrivateNetworks {
			client.Transport = ssrf.NewTransport()
		}
	}
	return &Fetcher{
		dir:       dir,
		client:    client,
		timeout:   cfg.Timeout,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		decoder:   imagecache.Decoder{MaxPixels: cfg.MaxPixels},
		guard:     cfg.BlockPrivateNetworks,
		cache:     cache,
		logger:    logger.With("component", "ingest.fetch"),
		now:       time.Now,
	}
}

func (f *Fetcher) SetMetrics(metrics *observability.Metrics) { f.metrics = metrics }

func (f *Fetcher) SetTracer(tracer *observability.Tracer) { f.tracer = tracer }

func (f *Fetcher) SetMirror(m ObjectMirror) { f.mirror = m }

// Fetch downloads rawURL, checks that it is an image of the declared content
// type and stores it as url-image-<unix-millis>.<ext>. Bodies over the byte
// limit, images over the pixel budget and content that is not the declared
// type fail with canvas.ErrInvalidImageFormat.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	res, err := f.fetch(ctx, rawURL)
	f.metrics.Ingest("url", err)
	return res, err
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := ParseImageURL(rawURL)
	if err != nil {
		return Result{}, err
	}
	if f.guard {
		if err := ssrf.CheckHost(u.Hostname()); err != nil {
			return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidURL, err)
		}
	}

	ctx, span := f.tracer.Start(ctx, "ingest.fetch", "url.host", u.Host)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ssrf.ErrBlocked) {
			return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidURL, err)
		}
		observability.RecordError(span, err)
		return Result{}, fmt.Errorf("%w: %v", canvas.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return Result{}, fmt.Errorf("%w: %s returned status %d", canvas.ErrFetch, u.Host, resp.StatusCode)
	}

	ext, ok := extForContentType(resp.Header.Get("Content-Type"))
	if !ok {
		return Result{}, fmt.Errorf("%w: unsupported content type %q", canvas.ErrInvalidImageFormat, resp.Header.Get("Content-Type"))
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return Result{}, fmt.Errorf("%w: %w", canvas.ErrInvalidImageFormat, err)
		}
		observability.RecordError(span, err)
		return Result{}, fmt.Errorf("%w: read body: %v", canvas.ErrFetch, err)
	}

	format, width, height, err := inspect(f.decoder, data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", canvas.ErrInvalidImageFormat, err)
	}
	if got := extForFormat(format); got != ext {
		return Result{}, fmt.Errorf("%w: declared %q but body is %s", canvas.ErrInvalidImageFormat, resp.Header.Get("Content-Type"), format)
	}

	res, err := f.store(ctx, ext, data)
	if err != nil {
		observability.RecordError(span, err)
		return Result{}, err
	}
	res.Format, res.Width, res.Height = format, width, height

	if err := mirrorUpload(ctx, f.mirror, filepath.Base(res.File), data, format); err != nil {
		f.logger.WarnContext(ctx, "upload mirror failed", "path", res.Path, "error", err)
	}
	f.logger.InfoContext(ctx, "image fetched", "url", u.Redacted(), "path", res.Path, "format", format, "bytes", len(data), "width", width, "height", height)
	return res, nil
}

func (f *Fetcher) store(ctx context.Context, ext string, data []byte) (Result, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create uploads dir: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	millis := f.now().UnixMilli()
	var name, file string
	for {
		name = fmt.Sprintf("url-image-%d.%s", millis, ext)
		file = filepath.Join(f.dir, name)
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			break
		}
		millis++
	}
	if err := artifacts.WriteFileAtomic(file, data); err != nil {
		return Result{}, fmt.Errorf("store fetched image: %w", err)
	}

	docPath := imagecache.DocPath(name)
	if f.cache != nil {
		f.cache.Invalidate(docPath)
	}
	return Result{Path: docPath, File: file}, nil
}

// ParseImageURL accepts absolute http and https URLs with a host.
func ParseImageURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url is required", canvas.ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", canvas.ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme must be http or https", canvas.ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: host is required", canvas.ErrInvalidURL)
	}
	return u, nil
}
