// Package web serves the canvas HTTP API, uploaded files and the live
// update stream.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/ingest"
	"github.com/haasonsaas/canvasd/internal/observability"
	"github.com/haasonsaas/canvasd/internal/ratelimit"
)

// DefaultBasePath is where the canvas API is mounted.
const DefaultBasePath = "/api/canvas"

// ArtifactReader reads the rendered artifacts.
type ArtifactReader interface {
	Preview(ctx context.Context) ([]byte, error)
	TakeExport(ctx context.Context) ([]byte, error)
}

// ImageFetcher stores images downloaded from a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (ingest.Result, error)
}

// ImageUploader stores and verifies multipart uploads.
type ImageUploader interface {
	Save(name, original string, r io.Reader) (ingest.Staged, error)
	Accept(ctx context.Context, staged ingest.Staged) (ingest.Result, error)
	MaxBytes() int64
}

// Config holds HTTP layer dependencies.
type Config struct {
	// BasePath is the URL prefix of the canvas API (default: /api/canvas).
	BasePath string
	// Manager owns the live document.
	Manager *canvas.Manager
	// Artifacts reads the preview and export.
	Artifacts ArtifactReader
	// Fetcher ingests images by URL.
	Fetcher ImageFetcher
	// Uploader ingests multipart uploads.
	Uploader ImageUploader
	// IngestLimiter throttles image-url and image-upload per client
	// address. Nil disables throttling.
	IngestLimiter *ratelimit.Limiter
	// UploadsDir is served under /uploads/. Empty disables static serving.
	UploadsDir string
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string
	// Metrics records request metrics (optional).
	Metrics *observability.Metrics
	// Tracer opens a span per request (optional).
	Tracer *observability.Tracer
	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler
	// KeepAlive is the SSE comment interval (default: 25s).
	KeepAlive time.Duration
	// Version is reported by /healthz.
	Version string
	// Logger for request logging
	Logger *slog.Logger
}

// Handler is the root HTTP handler.
type Handler struct {
	config *Config
	mux    *http.ServeMux
}

// NewHandler creates a handler and registers its routes.
func NewHandler(cfg *Config) *Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 25 * time.Second
	}

	h := &Handler{config: cfg, mux: http.NewServeMux()}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	base := h.config.BasePath

	h.mux.HandleFunc("GET "+base, h.apiState)
	h.mux.HandleFunc("GET "+base+"/{$}", h.apiState)
	h.mux.HandleFunc("POST "+base+"/init", h.apiInit)
	h.mux.HandleFunc("POST "+base+"/add/rectangle", h.apiAddRectangle)
	h.mux.HandleFunc("POST "+base+"/add/circle", h.apiAddCircle)
	h.mux.HandleFunc("POST "+base+"/add/text", h.apiAddText)
	h.mux.Handle("POST "+base+"/add/image-url", h.throttle(h.apiAddImageURL))
	h.mux.Handle("POST "+base+"/add/image-upload", h.throttle(h.apiAddImageUpload))
	h.mux.HandleFunc("POST "+base+"/clear", h.apiClear)
	h.mux.HandleFunc("GET "+base+"/preview", h.apiPreview)
	h.mux.HandleFunc("GET "+base+"/export", h.apiExport)
	h.mux.HandleFunc("GET "+base+"/events", h.apiEvents)

	if h.config.UploadsDir != "" {
		h.mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", uploadsFileServer(h.config.UploadsDir)))
	}
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.config.MetricsHandler != nil {
		h.mux.Handle("GET /metrics", h.config.MetricsHandler)
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler with middleware applied.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	handler = CORSMiddleware(h.config.CORSOrigins)(handler)
	handler = MetricsMiddleware(h.config.Metrics)(handler)
	handler = TracingMiddleware(h.config.Tracer)(handler)
	handler = LoggingMiddleware(h.config.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	doc := h.config.Manager.State()
	h.jsonResponse(w, map[string]any{
		"status":      "ok",
		"version":     h.config.Version,
		"initialized": doc.Initialized(),
		"elements":    len(doc.Elements),
		"viewers":     h.config.Manager.Hub().Subscribers(),
	})
}

// uploadsFileServer serves files from dir without directory listings or
// dot files, which include in-flight atomic writes.
func uploadsFileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(name, ".") || strings.Contains(name, "/.") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
