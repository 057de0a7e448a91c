// Package docling models the structural document tree produced by a docling-serve
// conversion backend and provides a client and container manager for that backend.
package docling

// Response is the result envelope returned by the conversion backend.
type Response struct {
	Document       *Document `json:"document"`
	Status         string    `json:"status,omitempty"`
	ProcessingTime float64   `json:"processing_time"`
}

// Document holds the converted outputs for one source file.
type Document struct {
	Filename string `json:"filename"`
	// MDContent is the flat markdown rendering, pages separated by the page-break marker.
	MDContent   string   `json:"md_content"`
	JSONContent *Content `json:"json_content"`
}

// Format returns the source format derived from the document filename.
// Unknown extensions yield an empty Format, which is treated as non-paginated.
func (d *Document) Format() Format {
	f, err := DetectFormat(d.Filename)
	if err != nil {
		return ""
	}
	return f
}

// Content is the structural tree. Any of the four collections may be absent.
type Content struct {
	Name     string              `json:"name,omitempty"`
	Pages    map[string]PageInfo `json:"pages,omitempty"`
	Body     *Body               `json:"body"`
	Groups   []*GroupItem        `json:"groups,omitempty"`
	Texts    []*TextItem         `json:"texts,omitempty"`
	Tables   []*TableItem        `json:"tables,omitempty"`
	Pictures []*PictureItem      `json:"pictures,omitempty"`
}

// Body is the document root. It only carries child references.
type Body struct {
	SelfRef      string `json:"self_ref"`
	Children     []Ref  `json:"children,omitempty"`
	ContentLayer string `json:"content_layer,omitempty"`
	Name         string `json:"name,omitempty"`
	Label        string `json:"label,omitempty"`
}

// PageInfo describes one page of a paginated source.
type PageInfo struct {
	PageNo int       `json:"page_no"`
	Image  *ImageRef `json:"image,omitempty"`
}

// Ref is a JSON pointer style reference to another node, e.g. "#/texts/3".
type Ref struct {
	Ref string `json:"$ref"`
}

// Prov is positional provenance. PageNo is 1-based; zero means unknown.
type Prov struct {
	PageNo   int   `json:"page_no"`
	BBox     *BBox `json:"bbox,omitempty"`
	Charspan []int `json:"charspan,omitempty"`
}

// CoordOrigin names the corner a bounding box is measured from.
type CoordOrigin string

const (
	OriginTopLeft    CoordOrigin = "TOPLEFT"
	OriginBottomLeft CoordOrigin = "BOTTOMLEFT"
)

// BBox is a bounding box. The meaning of T depends on CoordOrigin.
type BBox struct {
	L           float64     `json:"l"`
	T           float64     `json:"t"`
	R           float64     `json:"r"`
	B           float64     `json:"b"`
	CoordOrigin CoordOrigin `json:"coord_origin,omitempty"`
}

// ImageRef points at image data, usually an inline base64 data URI.
type ImageRef struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimetype,omitempty"`
}

// TableData holds the cell grid of a table.
type TableData struct {
	BBox       *BBox         `json:"bbox,omitempty"`
	TableCells []TableCell   `json:"table_cells,omitempty"`
	NumRows    int           `json:"num_rows,omitempty"`
	NumCols    int           `json:"num_cols,omitempty"`
	Grid       [][]TableCell `json:"grid,omitempty"`
}

// TableCell is one cell of a table, addressed by row/column offsets.
type TableCell struct {
	RowSpan           int    `json:"row_span,omitempty"`
	ColSpan           int    `json:"col_span,omitempty"`
	StartRowOffsetIdx int    `json:"start_row_offset_idx"`
	EndRowOffsetIdx   int    `json:"end_row_offset_idx"`
	StartColOffsetIdx int    `json:"start_col_offset_idx"`
	EndColOffsetIdx   int    `json:"end_col_offset_idx"`
	Text              string `json:"text"`
	ColumnHeader      bool   `json:"column_header,omitempty"`
	RowHeader         bool   `json:"row_header,omitempty"`
	RowSection        bool   `json:"row_section,omitempty"`
}

// TaskStatus reports the state of an asynchronous conversion task.
type TaskStatus struct {
	TaskID       string `json:"task_id"`
	TaskStatus   string `json:"task_status"`
	TaskPosition *int   `json:"task_position,omitempty"`
}

// Task states reported by the conversion backend.
const (
	TaskPending = "pending"
	TaskStarted = "started"
	TaskSuccess = "success"
	TaskFailure = "failure"
)
