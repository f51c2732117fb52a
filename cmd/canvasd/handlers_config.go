package main

import (
	"fmt"
	"io"

	"github.com/haasonsaas/canvasd/internal/config"
)

// loadConfig reads the file at path, or returns the defaults when no path
// is configured.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runConfigSchema(out io.Writer) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(schema))
	return err
}

func runConfigValidate(out io.Writer, path string) error {
	if path == "" {
		return fmt.Errorf("no config file given (use --config or CANVASD_CONFIG)")
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: ok (version %d)\n", path, cfg.Version)
	fmt.Fprintf(out, "  listen:  %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "  uploads: %s\n", cfg.Storage.UploadsDir)
	fmt.Fprintf(out, "  preview: %s\n", cfg.Storage.PreviewPath)
	fmt.Fprintf(out, "  export:  %s\n", cfg.Storage.ExportPath)
	if cfg.Artifacts.S3.Enabled {
		fmt.Fprintf(out, "  s3:      %s/%s\n", cfg.Artifacts.S3.Bucket, cfg.Artifacts.S3.Prefix)
	}
	return nil
}
