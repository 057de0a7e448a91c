package reconstruct

import (
	"log/slog"

	"github.com/jackzampolin/folio/internal/docling"
)

// Traversal is what a walk of the document tree produces.
type Traversal struct {
	Elements []Element
	Jobs     []ImageJob
}

type walker struct {
	index     Index
	paginated bool
	logger    *slog.Logger
	// path holds the refs on the current descent; a ref seen again is a cycle.
	path map[string]bool
}

// Traverse walks the tree from the body's children. Only groups are descended
// into. A node reachable from several parents is visited once per occurrence.
// Pictures become image jobs unless the format is paginated.
func Traverse(content *docling.Content, format docling.Format, logger *slog.Logger) *Traversal {
	if logger == nil {
		logger = slog.Default()
	}
	if content == nil || content.Body == nil {
		return &Traversal{}
	}

	w := &walker{
		index:     BuildIndex(content, logger),
		paginated: format.Paginated(),
		logger:    logger,
		path:      make(map[string]bool),
	}
	return w.visit(content.Body.Children)
}

func (w *walker) visit(refs []docling.Ref) *Traversal {
	out := &Traversal{}
	for _, ref := range refs {
		node, ok := w.index.Resolve(ref)
		if !ok {
			w.logger.Debug("dangling child reference", "ref", ref.Ref)
			continue
		}

		switch n := node.(type) {
		case *docling.TextItem:
			if el, ok := w.place(n.Ref, n.Prov, normalizeText(n.Text)); ok {
				out.Elements = append(out.Elements, el)
			}
		case *docling.TableItem:
			if el, ok := w.place(n.Ref, n.Prov, normalizeText(RenderTable(n.Data))); ok {
				out.Elements = append(out.Elements, el)
			}
		case *docling.PictureItem:
			if job, ok := w.picture(n); ok {
				out.Jobs = append(out.Jobs, job)
			}
		case *docling.GroupItem:
			if w.path[n.Ref] {
				w.logger.Warn("cyclic group reference", "ref", n.Ref)
				continue
			}
			w.path[n.Ref] = true
			sub := w.visit(n.Children)
			delete(w.path, n.Ref)
			out.Elements = append(out.Elements, sub.Elements...)
			out.Jobs = append(out.Jobs, sub.Jobs...)
		}
	}
	return out
}

func (w *walker) place(ref string, prov []docling.Prov, content string) (Element, bool) {
	p, ok := pageOf(prov)
	if !ok {
		w.logger.Debug("node without provenance", "ref", ref)
		return Element{}, false
	}
	el := Element{Page: p.PageNo, Content: content}
	if p.BBox != nil {
		el.Top = p.BBox.T
		el.Origin = p.BBox.CoordOrigin
	}
	return el, true
}

func (w *walker) picture(n *docling.PictureItem) (ImageJob, bool) {
	if w.paginated {
		return ImageJob{}, false
	}
	p, ok := pageOf(n.Prov)
	if !ok {
		w.logger.Debug("node without provenance", "ref", n.Ref)
		return ImageJob{}, false
	}
	if n.Image == nil || n.Image.URI == "" {
		return ImageJob{}, false
	}
	label := n.Label
	if label == "" {
		label = DefaultImageLabel
	}
	return ImageJob{Page: p.PageNo, URI: n.Image.URI, Label: label}, true
}

// pageOf returns the first provenance entry when it names a page.
func pageOf(prov []docling.Prov) (docling.Prov, bool) {
	p, ok := docling.FirstProv(prov)
	if !ok || p.PageNo < 1 {
		return docling.Prov{}, false
	}
	return p, true
}
