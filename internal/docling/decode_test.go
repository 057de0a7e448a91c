package docling

import (
	"errors"
	"testing"
)

const sampleResult = `{
  "document": {
    "filename": "report.docx",
    "md_content": "Hello",
    "json_content": {
      "name": "report",
      "body": {"self_ref": "#/body", "children": [{"$ref": "#/texts/0"}, {"$ref": "#/groups/0"}]},
      "groups": [{"self_ref": "#/groups/0", "children": [{"$ref": "#/tables/0"}], "label": "list", "name": "list"}],
      "texts": [{"self_ref": "#/texts/0", "label": "text", "text": "Hello",
                 "prov": [{"page_no": 1, "bbox": {"l": 1, "t": 5, "r": 2, "b": 3, "coord_origin": "TOPLEFT"}}]}],
      "tables": [{"self_ref": "#/tables/0", "label": "table",
                  "prov": [{"page_no": 2, "bbox": {"l": 0, "t": 0, "r": 0, "b": 0}}],
                  "data": {"table_cells": [{"start_row_offset_idx": 0, "start_col_offset_idx": 0, "text": "X"}]}}],
      "pictures": [{"self_ref": "#/pictures/0", "label": "chart", "image": {"uri": "data:image/png;base64,AAAA", "mimetype": "image/png"}}]
    }
  },
  "status": "success",
  "processing_time": 1.5
}`

func TestDecode(t *testing.T) {
	resp, err := Decode([]byte(sampleResult))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	doc := resp.Document
	if doc.Format() != FormatDOCX {
		t.Errorf("Format() = %q, want %q", doc.Format(), FormatDOCX)
	}

	content := doc.JSONContent
	if content.Body == nil || len(content.Body.Children) != 2 {
		t.Fatalf("expected body with 2 children, got %+v", content.Body)
	}
	if got := content.Body.Children[1].Ref; got != "#/groups/0" {
		t.Errorf("body child ref = %q, want #/groups/0", got)
	}

	if len(content.Texts) != 1 {
		t.Fatalf("expected 1 text, got %d", len(content.Texts))
	}
	text := content.Texts[0]
	if text.SelfRef() != "#/texts/0" {
		t.Errorf("SelfRef() = %q", text.SelfRef())
	}
	prov, ok := FirstProv(text.Prov)
	if !ok {
		t.Fatal("expected provenance on text")
	}
	if prov.PageNo != 1 || prov.BBox.T != 5 || prov.BBox.CoordOrigin != OriginTopLeft {
		t.Errorf("unexpected provenance: %+v %+v", prov, prov.BBox)
	}

	if len(content.Tables) != 1 || content.Tables[0].Data == nil {
		t.Fatal("expected one table with data")
	}
	if cells := content.Tables[0].Data.TableCells; len(cells) != 1 || cells[0].Text != "X" {
		t.Errorf("unexpected table cells: %+v", cells)
	}

	if len(content.Pictures) != 1 || content.Pictures[0].Image == nil {
		t.Fatal("expected one picture with image")
	}
	if content.Pictures[0].Label != "chart" {
		t.Errorf("picture label = %q, want chart", content.Pictures[0].Label)
	}
	if _, ok := FirstProv(content.Pictures[0].Prov); ok {
		t.Error("picture should have no provenance")
	}

	if len(content.Groups) != 1 || len(content.Groups[0].ChildRefs()) != 1 {
		t.Errorf("unexpected groups: %+v", content.Groups)
	}
}

func TestDecode_MissingCollections(t *testing.T) {
	resp, err := Decode([]byte(`{"document": {"filename": "a.pdf", "json_content": {}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	c := resp.Document.JSONContent
	if c.Body != nil || c.Texts != nil || c.Tables != nil || c.Pictures != nil || c.Groups != nil {
		t.Errorf("expected empty content, got %+v", c)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"document":`},
		{"wrong type", `{"document": []}`},
		{"missing document", `{"status": "success"}`},
		{"missing json_content", `{"document": {"filename": "a.pdf"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("Decode() error = %v, want ErrMalformedDocument", err)
			}
		})
	}
}
