package docling

// Node is a structural node of the document tree. The variant set is closed:
// *TextItem, *TableItem, *PictureItem and *GroupItem.
type Node interface {
	// SelfRef returns the node's own identifier, e.g. "#/texts/0".
	SelfRef() string
	// ChildRefs returns the node's ordered child references.
	ChildRefs() []Ref
	sealed()
}

// NodeItem carries the fields shared by every node variant.
type NodeItem struct {
	Ref          string `json:"self_ref"`
	Parent       *Ref   `json:"parent,omitempty"`
	Children     []Ref  `json:"children,omitempty"`
	ContentLayer string `json:"content_layer,omitempty"`
	Label        string `json:"label,omitempty"`
}

func (n *NodeItem) SelfRef() string   { return n.Ref }
func (n *NodeItem) ChildRefs() []Ref { return n.Children }

// TextItem is a run of text: paragraph, heading, list item, caption.
type TextItem struct {
	NodeItem
	Prov       []Prov `json:"prov,omitempty"`
	Orig       string `json:"orig,omitempty"`
	Text       string `json:"text"`
	Hyperlink  string `json:"hyperlink,omitempty"`
	Level      int    `json:"level,omitempty"`
	Enumerated bool   `json:"enumerated,omitempty"`
	Marker     string `json:"marker,omitempty"`
}

// TableItem is a table with its cell grid.
type TableItem struct {
	NodeItem
	Prov []Prov     `json:"prov,omitempty"`
	Data *TableData `json:"data,omitempty"`
}

// PictureItem is a figure. Image may be absent.
type PictureItem struct {
	NodeItem
	Prov  []Prov    `json:"prov,omitempty"`
	Image *ImageRef `json:"image,omitempty"`
}

// GroupItem is a pure structural container (list, section, slide).
type GroupItem struct {
	NodeItem
	Name string `json:"name,omitempty"`
}

func (*TextItem) sealed()    {}
func (*TableItem) sealed()   {}
func (*PictureItem) sealed() {}
func (*GroupItem) sealed()   {}

// FirstProv returns the first provenance entry, if any.
func FirstProv(prov []Prov) (Prov, bool) {
	if len(prov) == 0 {
		return Prov{}, false
	}
	return prov[0], true
}

var (
	_ Node = (*TextItem)(nil)
	_ Node = (*TableItem)(nil)
	_ Node = (*PictureItem)(nil)
	_ Node = (*GroupItem)(nil)
)
