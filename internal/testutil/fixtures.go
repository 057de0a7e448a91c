package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackzampolin/folio/internal/docling"
)

// DocBuilder assembles conversion results for tests. Every added node is
// attached to the body unless it is added to a group.
type DocBuilder struct {
	filename string
	md       string
	origin   docling.CoordOrigin
	content  docling.Content
}

// NewDoc starts a document with the given source filename.
func NewDoc(filename string) *DocBuilder {
	return &DocBuilder{
		filename: filename,
		content: docling.Content{
			Name: filename,
			Body: &docling.Body{SelfRef: "#/body", Label: "unspecified"},
		},
	}
}

// Origin sets the coordinate origin for bounding boxes added afterwards.
func (b *DocBuilder) Origin(o docling.CoordOrigin) *DocBuilder {
	b.origin = o
	return b
}

// Markdown sets the flat markdown rendering.
func (b *DocBuilder) Markdown(md string) *DocBuilder {
	b.md = md
	return b
}

// Text adds a text node. A page of zero adds it without provenance.
func (b *DocBuilder) Text(page int, top float64, text string) *DocBuilder {
	ref := fmt.Sprintf("#/texts/%d", len(b.content.Texts))
	b.content.Texts = append(b.content.Texts, &docling.TextItem{
		NodeItem: b.node(ref, "text"),
		Prov:     b.prov(page, top),
		Orig:     text,
		Text:     text,
	})
	b.attach(ref)
	return b
}

// Table adds a table node with the given cells.
func (b *DocBuilder) Table(page int, top float64, cells ...docling.TableCell) *DocBuilder {
	ref := fmt.Sprintf("#/tables/%d", len(b.content.Tables))
	b.content.Tables = append(b.content.Tables, &docling.TableItem{
		NodeItem: b.node(ref, "table"),
		Prov:     b.prov(page, top),
		Data:     &docling.TableData{TableCells: cells},
	})
	b.attach(ref)
	return b
}

// Picture adds a picture node. An empty uri adds it without an image.
func (b *DocBuilder) Picture(page int, label, uri string) *DocBuilder {
	ref := fmt.Sprintf("#/pictures/%d", len(b.content.Pictures))
	item := &docling.PictureItem{
		NodeItem: b.node(ref, label),
		Prov:     b.prov(page, 0),
	}
	if uri != "" {
		item.Image = &docling.ImageRef{URI: uri, MimeType: "image/png"}
	}
	b.content.Pictures = append(b.content.Pictures, item)
	b.attach(ref)
	return b
}

// Group adds a group whose children are the given refs.
func (b *DocBuilder) Group(children ...string) *DocBuilder {
	ref := fmt.Sprintf("#/groups/%d", len(b.content.Groups))
	item := &docling.GroupItem{NodeItem: b.node(ref, "list"), Name: "group"}
	for _, c := range children {
		item.Children = append(item.Children, docling.Ref{Ref: c})
	}
	b.content.Groups = append(b.content.Groups, item)
	b.attach(ref)
	return b
}

// Detach removes refs from the body's children so only groups reach them.
func (b *DocBuilder) Detach(refs ...string) *DocBuilder {
	drop := make(map[string]bool, len(refs))
	for _, r := range refs {
		drop[r] = true
	}
	kept := b.content.Body.Children[:0]
	for _, c := range b.content.Body.Children {
		if !drop[c.Ref] {
			kept = append(kept, c)
		}
	}
	b.content.Body.Children = kept
	return b
}

// Link appends a raw child reference to the body, resolvable or not.
func (b *DocBuilder) Link(ref string) *DocBuilder {
	b.attach(ref)
	return b
}

// Response returns the assembled conversion result.
func (b *DocBuilder) Response() *docling.Response {
	content := b.content
	return &docling.Response{
		Document: &docling.Document{
			Filename:    b.filename,
			MDContent:   b.md,
			JSONContent: &content,
		},
		Status: docling.TaskSuccess,
	}
}

// JSON returns the conversion result as the backend would serialize it.
func (b *DocBuilder) JSON(t testing.TB) []byte {
	t.Helper()
	data, err := json.Marshal(b.Response())
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	return data
}

func (b *DocBuilder) node(ref, label string) docling.NodeItem {
	return docling.NodeItem{
		Ref:          ref,
		Parent:       &docling.Ref{Ref: "#/body"},
		ContentLayer: "body",
		Label:        label,
	}
}

func (b *DocBuilder) prov(page int, top float64) []docling.Prov {
	if page == 0 {
		return nil
	}
	return []docling.Prov{{
		PageNo: page,
		BBox:   &docling.BBox{L: 0, T: top, R: 100, B: top + 10, CoordOrigin: b.origin},
	}}
}

func (b *DocBuilder) attach(ref string) {
	b.content.Body.Children = append(b.content.Body.Children, docling.Ref{Ref: ref})
}

// Cell returns a one-span table cell at the given offsets.
func Cell(row, col int, text string) docling.TableCell {
	return docling.TableCell{
		RowSpan:           1,
		ColSpan:           1,
		StartRowOffsetIdx: row,
		EndRowOffsetIdx:   row + 1,
		StartColOffsetIdx: col,
		EndColOffsetIdx:   col + 1,
		Text:              text,
	}
}
