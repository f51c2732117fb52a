// Package config loads the canvasd configuration file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/canvasd/internal/ratelimit"
)

// Config is the main configuration structure for canvasd.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Render        RenderConfig        `yaml:"render"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORSOrigins lists allowed origins. "*" allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`

	// Metrics toggles the /metrics endpoint.
	Metrics *bool `yaml:"metrics"`
}

// StorageConfig places the uploads directory and the rendered artifacts.
// Relative paths resolve against DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	UploadsDir  string `yaml:"uploads_dir"`
	PreviewPath string `yaml:"preview_path"`
	ExportPath  string `yaml:"export_path"`

	// WatchUploads invalidates cached images when files change on disk.
	WatchUploads *bool `yaml:"watch_uploads"`
}

type RenderConfig struct {
	// RetryDelay is the pause before the single retry of a failed render.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Fonts maps CSS font families to TTF files.
	Fonts map[string]string `yaml:"fonts"`

	// Creator is written into exported PDFs.
	Creator string `yaml:"creator"`

	// MaxDimension bounds the width and height of a canvas in pixels.
	MaxDimension int `yaml:"max_dimension"`
}

type IngestConfig struct {
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxBytes       int64         `yaml:"max_bytes"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	UserAgent      string        `yaml:"user_agent"`

	// MaxImagePixels bounds width*height of any image decoded for a canvas.
	// Raster images over it are rejected; SVGs are rasterized scaled down.
	MaxImagePixels int64 `yaml:"max_image_pixels"`

	// AllowPrivateNetworks lets image URLs point at loopback, private and
	// link-local hosts. Off by default.
	AllowPrivateNetworks bool `yaml:"allow_private_networks"`

	// RateLimit throttles image-url and image-upload per client address.
	// A zero rate disables it.
	RateLimit ratelimit.Config `yaml:"rate_limit"`

	// SweepSchedule is a cron expression for removing stale uploads.
	// Empty disables the sweeper.
	SweepSchedule string        `yaml:"sweep_schedule"`
	SweepMaxAge   time.Duration `yaml:"sweep_max_age"`
}

type ArtifactsConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config mirrors artifacts and uploads to an S3-compatible bucket.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OTLP span export. An empty endpoint disables it.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, merges and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.Metrics == nil {
		cfg.Server.Metrics = boolPtr(true)
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	cfg.Storage.UploadsDir = underDataDir(cfg.Storage.DataDir, cfg.Storage.UploadsDir, "uploads")
	cfg.Storage.PreviewPath = underDataDir(cfg.Storage.DataDir, cfg.Storage.PreviewPath, "preview.png")
	cfg.Storage.ExportPath = underDataDir(cfg.Storage.DataDir, cfg.Storage.ExportPath, "export.pdf")
	if cfg.Storage.WatchUploads == nil {
		cfg.Storage.WatchUploads = boolPtr(true)
	}

	if cfg.Render.RetryDelay == 0 {
		cfg.Render.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Render.Creator == "" {
		cfg.Render.Creator = "canvasd"
	}
	if cfg.Render.MaxDimension == 0 {
		cfg.Render.MaxDimension = 8192
	}

	if cfg.Ingest.FetchTimeout == 0 {
		cfg.Ingest.FetchTimeout = 15 * time.Second
	}
	if cfg.Ingest.MaxBytes == 0 {
		cfg.Ingest.MaxBytes = 20 << 20
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 20 << 20
	}
	if cfg.Ingest.UserAgent == "" {
		cfg.Ingest.UserAgent = "canvasd"
	}
	if cfg.Ingest.MaxImagePixels == 0 {
		cfg.Ingest.MaxImagePixels = 40_000_000
	}
	if cfg.Ingest.SweepSchedule != "" && cfg.Ingest.SweepMaxAge == 0 {
		cfg.Ingest.SweepMaxAge = 7 * 24 * time.Hour
	}

	if cfg.Artifacts.S3.Prefix == "" {
		cfg.Artifacts.S3.Prefix = "canvasd"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "canvasd"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1
	}
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if err := checkVersion(c.Version); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server timeouts must not be negative"))
	}
	if c.Storage.PreviewPath == c.Storage.ExportPath {
		errs = append(errs, fmt.Errorf("storage.preview_path and storage.export_path must differ"))
	}
	if c.Render.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("render.retry_delay must not be negative"))
	}
	if c.Render.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("render.max_dimension must not be negative, got %d", c.Render.MaxDimension))
	}
	for family, path := range c.Render.Fonts {
		if strings.TrimSpace(family) == "" || strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("render.fonts entries need a family and a path"))
			break
		}
	}
	if c.Ingest.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("ingest.fetch_timeout must not be negative"))
	}
	if c.Ingest.MaxBytes < 0 || c.Ingest.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("ingest byte limits must not be negative"))
	}
	if c.Ingest.MaxImagePixels < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_image_pixels must not be negative, got %d", c.Ingest.MaxImagePixels))
	}
	if c.Ingest.RateLimit.RequestsPerSecond < 0 || c.Ingest.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("ingest.rate_limit values must not be negative"))
	}
	if c.Ingest.SweepSchedule != "" && c.Ingest.SweepMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("ingest.sweep_max_age must be positive when sweep_schedule is set"))
	}
	if c.Artifacts.S3.Enabled && strings.TrimSpace(c.Artifacts.S3.Bucket) == "" {
		errs = append(errs, fmt.Errorf("artifacts.s3.bucket is required when s3 is enabled"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate must be within [0, 1], got %v", r))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsEnabled reports whether /metrics is served.
func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// WatchEnabled reports whether the uploads watcher runs.
func (s StorageConfig) WatchEnabled() bool {
	return s.WatchUploads == nil || *s.WatchUploads
}

func underDataDir(dataDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(dataDir, value)
}

func boolPtr(v bool) *bool { return &v }
