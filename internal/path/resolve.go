package path

import (
	"fmt"
	"strings"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

// Resolve resolves p against tree, returning the ordered list of matching
// arena indices. An empty frontier at a non-final step is a PathResolution
// error; an empty frontier at the final step returns (nil, nil) and lets
// the caller decide whether that is acceptable (spec.md 4.1).
//
// Resolve does not accept paths ending in children/N: use ResolveInsertion
// for those.
func Resolve(tree *doctree.Tree, p Path) ([]int, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	segs := p.Segments
	if segs[len(segs)-1].Kind == KindChildren {
		return nil, docxerr.WithPath(docxerr.PathResolution, p.String(), "children/N is an insertion point, not a resolvable target")
	}

	frontier := []int{tree.Root()}
	for i, seg := range segs {
		last := i == len(segs)-1

		if i == 0 && seg.Kind == KindBody {
			continue
		}
		if seg.Kind == KindStyle && last {
			for _, idx := range frontier {
				ensureProps(tree, idx)
			}
			continue
		}

		next, err := selectChildren(tree, frontier, seg, p)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 && !last {
			return nil, docxerr.WithPath(docxerr.PathResolution, p.String(),
				fmt.Sprintf("no elements matched %s", segmentString(seg)))
		}
		frontier = next
	}
	return frontier, nil
}

// ResolveInsertion resolves a path ending in children/N to exactly one
// parent plus the requested insertion index. Per spec.md 4.1, N may exceed
// the parent's child count; callers append in that case.
func ResolveInsertion(tree *doctree.Tree, p Path) (parent int, n int, err error) {
	if err := Validate(p); err != nil {
		return 0, 0, err
	}
	segs := p.Segments
	last := segs[len(segs)-1]
	if last.Kind != KindChildren {
		return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(), "path does not end in children/N")
	}

	prefix := Path{Segments: segs[:len(segs)-1], Raw: p.Raw}
	frontier := []int{tree.Root()}
	for i, seg := range prefix.Segments {
		if i == 0 && seg.Kind == KindBody {
			continue
		}
		if seg.Kind == KindStyle {
			continue
		}
		next, serr := selectChildren(tree, frontier, seg, p)
		if serr != nil {
			return 0, 0, serr
		}
		if len(next) == 0 {
			return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(),
				fmt.Sprintf("no elements matched %s", segmentString(seg)))
		}
		frontier = next
	}

	if len(frontier) != 1 {
		return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(),
			fmt.Sprintf("insertion path must resolve to exactly one parent, got %d", len(frontier)))
	}
	return frontier[0], last.Children, nil
}

func ensureProps(tree *doctree.Tree, idx int) {
	n := tree.Node(idx)
	if n == nil {
		return
	}
	switch n.Kind {
	case doctree.KindParagraph, doctree.KindHeading:
		if n.ParagraphProps == nil {
			n.ParagraphProps = &doctree.ParagraphProps{}
		}
	case doctree.KindRun:
		if n.RunProps == nil {
			n.RunProps = &doctree.RunProps{}
		}
	case doctree.KindTable:
		if n.TableProps == nil {
			n.TableProps = &doctree.TableProps{}
		}
	case doctree.KindCell:
		if n.CellProps == nil {
			n.CellProps = &doctree.CellProps{}
		}
	}
}

// selectChildren expands frontier by one segment, applying kind, level,
// and selector filters.
func selectChildren(tree *doctree.Tree, frontier []int, seg Segment, p Path) ([]int, error) {
	nodeKind, ok := nodeKindFor[seg.Kind]
	if !ok {
		return nil, docxerr.WithPath(docxerr.PathSyntax, p.String(), fmt.Sprintf("segment kind %q cannot be resolved", seg.Kind))
	}

	var result []int
	for _, parent := range frontier {
		pn := tree.Node(parent)
		if pn == nil {
			continue
		}
		var matched []int
		for _, c := range pn.Children() {
			cn := tree.Node(c)
			if cn == nil || cn.Kind != nodeKind {
				continue
			}
			if seg.Kind == KindHeading && seg.Sel.HasLevel && cn.Level != seg.Sel.Level {
				continue
			}
			matched = append(matched, c)
		}
		matched = filterPredicates(tree, matched, seg.Sel)

		if seg.Sel.Wildcard || (!seg.Sel.HasIndex && seg.Sel.isEmpty()) {
			result = append(result, matched...)
			continue
		}
		if !seg.Sel.HasIndex {
			// id/text/style selector with no index: all matches qualify.
			result = append(result, matched...)
			continue
		}

		n := len(matched)
		idx := seg.Sel.Index
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			if len(frontier) == 1 {
				rng := "no elements"
				if n > 0 {
					rng = fmt.Sprintf("valid range is [0, %d] or [-%d, -1]", n-1, n)
				}
				return nil, docxerr.WithPath(docxerr.PathResolution, p.String(),
					fmt.Sprintf("index %d out of range for %s; %s", seg.Sel.Index, seg.Kind, rng))
			}
			continue
		}
		result = append(result, matched[idx])
	}
	return result, nil
}

func filterPredicates(tree *doctree.Tree, nodes []int, sel Selector) []int {
	if sel.ID == "" && sel.TextEq == "" && sel.TextLike == "" && sel.StyleName == "" {
		return nodes
	}
	out := nodes[:0:0]
	for _, idx := range nodes {
		n := tree.Node(idx)
		if n == nil {
			continue
		}
		if sel.ID != "" && n.ID != sel.ID {
			continue
		}
		if sel.TextEq != "" && !strings.EqualFold(tree.InnerText(idx), sel.TextEq) {
			continue
		}
		if sel.TextLike != "" && !strings.Contains(strings.ToLower(tree.InnerText(idx)), strings.ToLower(sel.TextLike)) {
			continue
		}
		if sel.StyleName != "" && n.StyleName != sel.StyleName {
			continue
		}
		out = append(out, idx)
	}
	return out
}
