// Package main provides the CLI entry point for canvasd, a single-document
// drawing server.
//
// canvasd keeps one canvas in memory. Every change re-renders a PNG preview
// and a PDF export, which clients fetch over HTTP.
//
// # Basic Usage
//
// Start the server:
//
//	canvasd serve --config canvasd.yaml
//
// Render a saved document offline:
//
//	canvasd render --input doc.json --png out.png --pdf out.pdf
//
// Print the configuration schema:
//
//	canvasd config schema
//
// # Environment Variables
//
//   - PORT: HTTP port when --port is not given
//   - CANVASD_CONFIG: path to the configuration file
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "canvasd",
		Short: "canvasd - drawing canvas server with PNG preview and PDF export",
		Long: `canvasd holds one canvas of rectangles, circles, text and images.

Each change re-renders a PNG preview and a PDF export. Images can be added
from a URL or uploaded directly.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRenderCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
