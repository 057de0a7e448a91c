package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/reconstruct"
)

var (
	processDescriber string
	processOutFile   string
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Reconstruct a document without a running server",
	Long: `Reconstruct a document locally and print its pages.

A .json argument is treated as an existing docling-serve conversion result.
Any other file is first converted by the docling-serve instance at docling.url.
Pictures are described with the configured describer.

Examples:
  folio process result.json                     # Reconstruct a saved result
  folio process slides.pptx -o text             # Convert, reconstruct and render
  folio process report.pdf --describer ollama   # Use a local vision model`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := getConfigManager(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		logger := newLogger(cfg)

		name := processDescriber
		if name == "" {
			name = cfg.Enrichment.Describer
		}
		registry := providers.NewRegistryFromConfig(cfg.ToDescriberConfigs(), logger)
		d, err := registry.Get(name)
		if err != nil {
			return fmt.Errorf("%w (enabled: %s)", err, strings.Join(registry.List(), ", "))
		}

		rc, err := reconstruct.New(cfg.ReconstructConfig(d, metrics.NewRecorder(metrics.DefaultCapacity), logger))
		if err != nil {
			return err
		}

		var (
			data      []byte
			pageCount int
		)
		if strings.EqualFold(filepath.Ext(path), ".json") {
			data, err = os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else {
			data, pageCount, err = convertFile(cmd, docling.NewClient(cfg.DoclingClientConfig(logger)), path)
			if err != nil {
				return err
			}
		}

		pages, err := rc.ProcessJSON(ctx, data)
		if err != nil {
			return err
		}
		if pages.Exceeds(pageCount) {
			logger.Warn("reconstructed page beyond document length",
				"filename", filepath.Base(path),
				"last_page", pages.Last(),
				"page_count", pageCount)
		}

		if processOutFile != "" {
			return api.OutputToFile(pages, processOutFile)
		}
		return api.Output(pages)
	},
}

// convertFile uploads a document to the conversion backend and waits for the result.
// It also returns the PDF page count, or 0 for other formats.
func convertFile(cmd *cobra.Command, client *docling.Client, path string) ([]byte, int, error) {
	ctx := cmd.Context()

	format, err := docling.DetectFormat(path)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var pageCount int
	if format.Paginated() {
		if pageCount, err = docling.PageCount(f, format); err != nil {
			return nil, 0, fmt.Errorf("invalid PDF %s: %w", path, err)
		}
	}

	task, err := client.StartConvert(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to start conversion: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Converting %s (task %s)...\n", filepath.Base(path), task.TaskID)

	data, err := client.WaitForResult(ctx, task.TaskID)
	if err != nil {
		return nil, 0, err
	}
	return data, pageCount, nil
}

func init() {
	processCmd.Flags().StringVar(&processDescriber, "describer", "", "Describer to use (default: enrichment.describer from config)")
	processCmd.Flags().StringVarP(&processOutFile, "file", "f", "", "Write JSON output to a file")

	rootCmd.AddCommand(processCmd)
}
