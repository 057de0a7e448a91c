package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/folio/internal/reconstruct"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatText OutputFormat = "text"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat OutputFormat = OutputFormatYAML

// SetOutputFormat sets the global output format.
func SetOutputFormat(format string) {
	globalOutputFormat = ParseOutputFormat(format)
}

// ParseOutputFormat maps a flag value to a format, falling back to DefaultOutput.
func ParseOutputFormat(format string) OutputFormat {
	switch OutputFormat(format) {
	case OutputFormatJSON, OutputFormatYAML, OutputFormatText:
		return OutputFormat(format)
	default:
		return DefaultOutput
	}
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputAs writes data to stdout in the specified format.
func OutputAs(format OutputFormat, data any) error {
	return OutputTo(os.Stdout, format, data)
}

// OutputToFile writes data as indented JSON to a file.
func OutputToFile(data any, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return OutputTo(f, OutputFormatJSON, data)
}

// OutputTo writes data to the given writer in the specified format.
// Text output renders page maps for reading; other values fall back to YAML.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		// Round-trip through JSON so custom MarshalJSON shapes (page maps) survive.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var node yaml.Node
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return err
		}
		blockStyle(&node)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(&node)
	case OutputFormatText:
		if pages, ok := data.(reconstruct.Pages); ok {
			_, err := io.WriteString(w, RenderPages(pages))
			return err
		}
		return OutputTo(w, OutputFormatYAML, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// blockStyle clears the flow and quoting styles picked up from JSON input.
// The encoder still quotes strings that would otherwise read as another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// IsStructuredOutput returns true if the output format is structured (JSON/YAML).
func IsStructuredOutput() bool {
	return globalOutputFormat == OutputFormatJSON || globalOutputFormat == OutputFormatYAML
}

var (
	pageHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	imageTitleStyle = lipgloss.NewStyle().Bold(true)
	imageBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).PaddingLeft(2)
	imageBoxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#888888")).Padding(0, 1)
)

// RenderPages formats reconstructed pages for a terminal.
func RenderPages(pages reconstruct.Pages) string {
	var blocks []string
	for _, p := range pages {
		header := pageHeaderStyle.Render("Page " + strconv.Itoa(p.Number))
		parts := []string{header}
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
		for _, img := range p.Images {
			box := lipgloss.JoinVertical(lipgloss.Left,
				imageTitleStyle.Render(img.Title),
				imageBodyStyle.Render(img.Description),
			)
			parts = append(parts, imageBoxStyle.Render(box))
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, parts...))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
