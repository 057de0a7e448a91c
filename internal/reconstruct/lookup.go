package reconstruct

import (
	"log/slog"

	"github.com/jackzampolin/folio/internal/docling"
)

// Index maps a node's self-reference to the node. It does not own the nodes.
type Index map[string]docling.Node

// BuildIndex indexes every node of the four content collections.
// A duplicate self-reference is logged and the later node wins.
func BuildIndex(content *docling.Content, logger *slog.Logger) Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := make(Index)
	if content == nil {
		return idx
	}

	add := func(n docling.Node) {
		ref := n.SelfRef()
		if _, dup := idx[ref]; dup {
			logger.Warn("duplicate self reference", "ref", ref)
		}
		idx[ref] = n
	}

	for _, n := range content.Texts {
		if n != nil {
			add(n)
		}
	}
	for _, n := range content.Groups {
		if n != nil {
			add(n)
		}
	}
	for _, n := range content.Tables {
		if n != nil {
			add(n)
		}
	}
	for _, n := range content.Pictures {
		if n != nil {
			add(n)
		}
	}
	return idx
}

// Resolve returns the node for a reference.
func (idx Index) Resolve(ref docling.Ref) (docling.Node, bool) {
	n, ok := idx[ref.Ref]
	return n, ok
}
