package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Document reconstruction with image enrichment",
	Long: `Folio turns documents into page-by-page markdown.

Documents (PDF, DOCX, PPTX) are converted by a docling-serve backend.
Folio then rebuilds the reading order from the conversion result:
  - Resolves the reference graph and walks the body tree
  - Renders tables as markdown grids
  - Describes every picture with a vision model (with retries and a fallback)
  - Merges text and image descriptions into numbered pages`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default: log_level from config)",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getConfigManager loads configuration from --config, the working directory,
// or the home directory, in that order.
func getConfigManager(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h != nil && h.ConfigExists() {
		if _, err := os.Stat(home.ConfigFileName); err != nil {
			path = h.ConfigPath()
		}
	}
	return config.NewManager(path)
}

// newLogger builds the process logger. The --log-level flag wins over config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logLevel
	if level == "" && cfg != nil {
		level = cfg.LogLevel
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
