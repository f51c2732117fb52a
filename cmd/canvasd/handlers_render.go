package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/haasonsaas/canvasd/internal/artifacts"
	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/imagecache"
	"github.com/haasonsaas/canvasd/internal/render"
)

type renderOptions struct {
	Input      string
	PNG        string
	PDF        string
	UploadsDir string
	ConfigPath string
}

// documentFile accepts a bare document or the {"canvas": ...} envelope the
// API returns.
type documentFile struct {
	canvas.Document
	Canvas *canvas.Document `json:"canvas"`
}

// runRender paints a document file to PNG and/or PDF without a server.
func runRender(ctx context.Context, stdout io.Writer, opts renderOptions) error {
	if opts.PNG == "" && opts.PDF == "" {
		return fmt.Errorf("nothing to write: pass --png and/or --pdf")
	}
	if opts.PNG == "-" && opts.PDF == "-" {
		return fmt.Errorf("only one output can go to stdout")
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	uploads := opts.UploadsDir
	if uploads == "" {
		uploads = cfg.Storage.UploadsDir
	}

	doc, err := readDocument(opts.Input, cfg.Render.MaxDimension)
	if err != nil {
		return err
	}

	fonts, err := render.NewFonts()
	if err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	for family, path := range cfg.Render.Fonts {
		if err := fonts.RegisterFile(family, path); err != nil {
			return fmt.Errorf("register font %q: %w", family, err)
		}
	}

	logger := slog.Default()
	cache := imagecache.New(uploads, logger)
	cache.SetMaxPixels(cfg.Ingest.MaxImagePixels)
	pipeline := render.New(cache, nil, fonts, logger, render.Options{Creator: cfg.Render.Creator})

	out, err := pipeline.Paint(ctx, doc)
	if err != nil {
		return err
	}
	if err := writeOutput(stdout, opts.PNG, out.PNG); err != nil {
		return err
	}
	if err := writeOutput(stdout, opts.PDF, out.PDF); err != nil {
		return err
	}
	logger.Info("rendered document",
		"width", doc.Width,
		"height", doc.Height,
		"elements", len(doc.Elements),
	)
	return nil
}

func readDocument(path string, maxDimension int) (canvas.Document, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return canvas.Document{}, fmt.Errorf("open document: %w", err)
		}
		defer f.Close()
		r = f
	}

	var file documentFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return canvas.Document{}, fmt.Errorf("%w: decode document: %v", canvas.ErrInvalidInput, err)
	}
	doc := file.Document
	if file.Canvas != nil {
		doc = *file.Canvas
	}
	for i, el := range doc.Elements {
		doc.Elements[i] = el.Normalize()
	}
	if err := doc.ValidateWithin(maxDimension); err != nil {
		return canvas.Document{}, err
	}
	return doc, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	switch path {
	case "":
		return nil
	case "-":
		_, err := stdout.Write(data)
		return err
	default:
		return artifacts.WriteFileAtomic(path, data)
	}
}
