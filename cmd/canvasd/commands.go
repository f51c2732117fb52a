package main

import (
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the canvas server",
		Long: `Start the canvas server.

The server will:
1. Load configuration from the given file, or use defaults
2. Prepare the uploads directory and artifact paths
3. Start the uploads watcher and, if scheduled, the uploads sweeper
4. Serve the canvas API under /api/canvas

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults on port 5000
  canvasd serve

  # Start with a config file on another port
  canvasd serve --config /etc/canvasd/canvasd.yaml --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = 0
			}
			return runServe(cmd.Context(), serveOptions{
				ConfigPath: resolveConfigPath(configPath),
				Port:       port,
				Debug:      debug,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "HTTP port (overrides config and PORT)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Render Command
// =============================================================================

// buildRenderCmd creates the "render" command that renders a document file
// without starting a server.
func buildRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a canvas document JSON to PNG and PDF",
		Example: `  canvasd render --input doc.json --png preview.png --pdf export.pdf
  canvasd render -i doc.json --png - > preview.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = resolveConfigPath(opts.ConfigPath)
			return runRender(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Document JSON file (- for stdin)")
	cmd.Flags().StringVar(&opts.PNG, "png", "", "PNG output path (- for stdout)")
	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "PDF output path (- for stdout)")
	cmd.Flags().StringVar(&opts.UploadsDir, "uploads", "", "Directory image paths resolve against (default from config)")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd.OutOrStdout())
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration file and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

// resolveConfigPath falls back to CANVASD_CONFIG when no path was given.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv("CANVASD_CONFIG")
}
