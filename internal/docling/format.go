package docling

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for files the conversion backend cannot ingest.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format is the backend's name for a source format ("from_formats").
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatPPTX    Format = "pptx"
	FormatHTML    Format = "html"
	FormatImage   Format = "image"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatXMLJATS Format = "xml_jats"
	FormatMD      Format = "md"
)

var extensionFormats = map[string]Format{
	"pdf":  FormatPDF,
	"docx": FormatDOCX,
	"pptx": FormatPPTX,
	"html": FormatHTML,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"png":  FormatImage,
	"csv":  FormatCSV,
	"xlsx": FormatXLSX,
	"xml":  FormatXMLJATS,
	"md":   FormatMD,
}

// DetectFormat maps a filename's extension to the backend format name.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
}

// Paginated reports whether structural picture URIs are unreliable for this format
// and images must instead be collected from the markdown rendering.
func (f Format) Paginated() bool {
	return f == FormatPDF
}
