package reconstruct

import (
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/docling"
)

// SortOrder is the direction elements are sorted by their top coordinate.
type SortOrder int

const (
	// Descending suits bottom-left origins, where larger top means higher on the page.
	Descending SortOrder = iota
	// Ascending suits top-left origins.
	Ascending
)

func (o SortOrder) String() string {
	if o == Ascending {
		return "ascending"
	}
	return "descending"
}

// OrderFor picks the reading-order direction. pptx always sorts ascending:
// its slide boxes are tagged bottom-left but measured from the slide top.
// For other formats the coordinate origin of the first element that declares
// one wins, and descending is the default.
func OrderFor(format docling.Format, elements []Element) SortOrder {
	if format == docling.FormatPPTX {
		return Ascending
	}
	for _, el := range elements {
		switch el.Origin {
		case docling.OriginTopLeft:
			return Ascending
		case docling.OriginBottomLeft:
			return Descending
		}
	}
	return Descending
}

// Merge groups elements and image outputs by page. Elements on a page are
// stably sorted by top coordinate and joined with newlines; images keep
// arrival order. The result is ascending by page.
func Merge(elements []Element, images []ImageOutput, order SortOrder) Pages {
	byPage := make(map[int][]Element)
	for _, el := range elements {
		byPage[el.Page] = append(byPage[el.Page], el)
	}
	imagesByPage := make(map[int][]ImageOutput)
	for _, img := range images {
		imagesByPage[img.Page] = append(imagesByPage[img.Page], img)
	}

	numbers := make([]int, 0, len(byPage)+len(imagesByPage))
	for n := range byPage {
		numbers = append(numbers, n)
	}
	for n := range imagesByPage {
		if _, ok := byPage[n]; !ok {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	pages := make(Pages, 0, len(numbers))
	for _, n := range numbers {
		page := Page{Number: n, Images: imagesByPage[n]}
		if page.Images == nil {
			page.Images = []ImageOutput{}
		}
		page.Text = joinElements(byPage[n], order)
		pages = append(pages, page)
	}
	return pages
}

func joinElements(elements []Element, order SortOrder) string {
	sort.SliceStable(elements, func(i, j int) bool {
		if order == Ascending {
			return elements[i].Top < elements[j].Top
		}
		return elements[i].Top > elements[j].Top
	})

	var b strings.Builder
	for _, el := range elements {
		// No separator is written until the page has content.
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(el.Content)
	}
	return b.String()
}
