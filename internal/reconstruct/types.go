// Package reconstruct turns a docling document tree into page-ordered text,
// enriching pictures with model-generated titles and descriptions.
package reconstruct

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackzampolin/folio/internal/docling"
)

// Element is a text or table block placed on a page.
type Element struct {
	Page    int
	Top     float64
	Content string
	Origin  docling.CoordOrigin
}

// ImageJob is one image awaiting enrichment.
type ImageJob struct {
	Page  int
	URI   string
	Label string
}

// ImageOutput is the enrichment result for one image.
type ImageOutput struct {
	Page        int    `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Page is the reconstructed content of one page.
type Page struct {
	Number int           `json:"-"`
	Text   string        `json:"text"`
	Images []ImageOutput `json:"images"`
}

// Pages is the reconstruction output, ascending by page number.
// It encodes as a JSON object keyed by the decimal page number.
type Pages []Page

// Get returns the page with the given number.
func (p Pages) Get(number int) (Page, bool) {
	i := sort.Search(len(p), func(i int) bool { return p[i].Number >= number })
	if i < len(p) && p[i].Number == number {
		return p[i], true
	}
	return Page{}, false
}

// Last returns the highest page number, or 0 when there are no pages.
func (p Pages) Last() int {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Number
}

// Exceeds reports whether any page lies beyond pageCount. A non-positive
// pageCount means the length is unknown.
func (p Pages) Exceeds(pageCount int) bool {
	return pageCount > 0 && p.Last() > pageCount
}

// ImageCount returns the number of images across all pages.
func (p Pages) ImageCount() int {
	n := 0
	for _, page := range p {
		n += len(page.Images)
	}
	return n
}

// MarshalJSON emits pages as an object in ascending page order.
func (p Pages) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, page := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		if page.Images == nil {
			page.Images = []ImageOutput{}
		}
		body, err := json.Marshal(page)
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(page.Number)))
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a page-keyed object back into ascending pages.
func (p *Pages) UnmarshalJSON(data []byte) error {
	var raw map[string]Page
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pages := make(Pages, 0, len(raw))
	for key, page := range raw {
		n, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid page number %q: %w", key, err)
		}
		page.Number = n
		if page.Images == nil {
			page.Images = []ImageOutput{}
		}
		for i := range page.Images {
			page.Images[i].Page = n
		}
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	*p = pages
	return nil
}
