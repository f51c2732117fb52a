package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/canvasd/internal/artifacts"
	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/config"
	"github.com/haasonsaas/canvasd/internal/imagecache"
	"github.com/haasonsaas/canvasd/internal/ingest"
	"github.com/haasonsaas/canvasd/internal/observability"
	"github.com/haasonsaas/canvasd/internal/ratelimit"
	"github.com/haasonsaas/canvasd/internal/render"
	"github.com/haasonsaas/canvasd/internal/web"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

type serveOptions struct {
	ConfigPath string
	Port       int
	Debug      bool
}

// app is the wired server: every long-lived component plus its shutdown.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *canvas.Manager
	handler  http.Handler
	watcher  *imagecache.Watcher
	sweeper  *ingest.Sweeper
	shutdown []func(context.Context) error
}

// runServe loads configuration, wires the components and serves until a
// shutdown signal arrives.
func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyPortOverride(cfg, opts.Port)
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	logger.Info("starting canvasd",
		"version", version,
		"commit", commit,
		"config", opts.ConfigPath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		_ = a.close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("canvasd started",
		"addr", srv.Addr,
		"uploads_dir", cfg.Storage.UploadsDir,
		"preview", cfg.Storage.PreviewPath,
		"export", cfg.Storage.ExportPath,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = a.close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("canvasd stopped gracefully")
	return nil
}

// applyPortOverride gives --port precedence over PORT, and PORT over the
// configured port.
func applyPortOverride(cfg *config.Config, flagPort int) {
	if flagPort > 0 {
		cfg.Server.Port = flagPort
		return
	}
	if env := strings.TrimSpace(os.Getenv("PORT")); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 && port < 65536 {
			cfg.Server.Port = port
		}
	}
}

// newApp wires the canvas components from cfg. Nothing is started.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.Server.MetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	tracer, shutdownTracer, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownTracer)

	fonts, err := render.NewFonts()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	for family, path := range cfg.Render.Fonts {
		if err := fonts.RegisterFile(family, path); err != nil {
			return nil, fmt.Errorf("register font %q: %w", family, err)
		}
	}

	if err := os.MkdirAll(cfg.Storage.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	store, err := artifacts.NewLocalStore(cfg.Storage.PreviewPath, cfg.Storage.ExportPath, logger)
	if err != nil {
		return nil, err
	}

	var mirror *artifacts.S3Mirror
	if cfg.Artifacts.S3.Enabled {
		s3cfg := cfg.Artifacts.S3
		mirror, err = artifacts.NewS3Mirror(ctx, artifacts.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 mirror: %w", err)
		}
		store.SetMirror(mirror)
		logger.Info("mirroring artifacts to s3", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix)
	}

	cache := imagecache.New(cfg.Storage.UploadsDir, logger)
	cache.SetMetrics(metrics)
	cache.SetMaxPixels(cfg.Ingest.MaxImagePixels)

	pipeline := render.New(cache, store, fonts, logger, render.Options{
		RetryDelay: cfg.Render.RetryDelay,
		Creator:    cfg.Render.Creator,
	})
	pipeline.SetMetrics(metrics)
	pipeline.SetTracer(tracer)

	a.manager = canvas.NewManager(pipeline, cache, logger)
	a.manager.SetMetrics(metrics)
	a.manager.SetMaxDimension(cfg.Render.MaxDimension)

	fetcher := ingest.NewFetcher(cfg.Storage.UploadsDir, cache, ingest.FetcherConfig{
		Timeout:              cfg.Ingest.FetchTimeout,
		MaxBytes:             cfg.Ingest.MaxBytes,
		UserAgent:            cfg.Ingest.UserAgent,
		MaxPixels:            cfg.Ingest.MaxImagePixels,
		BlockPrivateNetworks: !cfg.Ingest.AllowPrivateNetworks,
	}, logger)
	fetcher.SetMetrics(metrics)
	fetcher.SetTracer(tracer)

	uploader := ingest.NewUploader(cfg.Storage.UploadsDir, cfg.Ingest.MaxUploadBytes, cache, logger)
	uploader.SetMetrics(metrics)
	uploader.SetMaxPixels(cfg.Ingest.MaxImagePixels)

	if cfg.Storage.WatchEnabled() {
		a.watcher = imagecache.NewWatcher(cache, logger)
		a.watcher.OnChange = a.rerenderOnChange
	}

	if cfg.Ingest.SweepSchedule != "" {
		a.sweeper, err = ingest.NewSweeper(cfg.Storage.UploadsDir, a.manager, cache, ingest.SweeperConfig{
			Schedule: cfg.Ingest.SweepSchedule,
			MaxAge:   cfg.Ingest.SweepMaxAge,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init uploads sweeper: %w", err)
		}
	}

	if mirror != nil {
		fetcher.SetMirror(mirror)
		uploader.SetMirror(mirror)
		if a.sweeper != nil {
			a.sweeper.SetMirror(mirror)
		}
	}

	a.handler = web.NewHandler(&web.Config{
		Manager:        a.manager,
		Artifacts:      store,
		Fetcher:        fetcher,
		Uploader:       uploader,
		IngestLimiter:  ratelimit.NewLimiter(cfg.Ingest.RateLimit),
		UploadsDir:     cfg.Storage.UploadsDir,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        metrics,
		Tracer:         tracer,
		MetricsHandler: metricsHandler,
		Version:        version,
		Logger:         logger,
	}).Mount()

	return a, nil
}

// rerenderOnChange refreshes the artifacts when an image the document uses
// changed on disk.
func (a *app) rerenderOnChange(docPath string) {
	if !a.manager.References(docPath) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.manager.Rerender(ctx); err != nil {
		a.logger.Warn("re-render after upload change failed", "path", docPath, "error", err)
	}
}

// start launches the background workers.
func (a *app) start(ctx context.Context) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start uploads watcher: %w", err)
		}
		a.shutdown = append(a.shutdown, func(context.Context) error { return a.watcher.Close() })
	}
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start uploads sweeper: %w", err)
		}
		a.shutdown = append(a.shutdown, func(context.Context) error {
			a.sweeper.Stop()
			return nil
		})
	}
	return nil
}

// close stops the workers in reverse start order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdown = nil
	return errors.Join(errs...)
}
