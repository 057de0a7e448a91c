package docling

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages in a PDF upload.
// Non-paginated formats report zero pages.
func PageCount(rs io.ReadSeeker, format Format) (int, error) {
	if !format.Paginated() {
		return 0, nil
	}
	n, err := api.PageCount(rs, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to rewind upload: %w", err)
	}
	return n, nil
}
