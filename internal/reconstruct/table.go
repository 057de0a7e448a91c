package reconstruct

import (
	"strconv"
	"strings"

	"github.com/jackzampolin/folio/internal/docling"
)

const (
	tableStart = "--- TABLE START ---"
	tableEnd   = "--- TABLE END ---"
	emptyTable = "Empty Table"
)

// RenderTable flattens a table's cells into one line per cell, in cell order.
func RenderTable(data *docling.TableData) string {
	if data == nil || len(data.TableCells) == 0 {
		return emptyTable
	}

	var b strings.Builder
	b.WriteString(tableStart)
	b.WriteByte('\n')
	for _, cell := range data.TableCells {
		b.WriteString("- Cell [")
		b.WriteString(strconv.Itoa(cell.StartRowOffsetIdx))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(cell.StartColOffsetIdx))
		b.WriteString("]: ")
		b.WriteString(cell.Text)
		b.WriteByte('\n')
	}
	b.WriteString(tableEnd)
	b.WriteByte('\n')
	return b.String()
}
