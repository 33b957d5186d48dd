package doctree

import (
	"strings"

	"github.com/google/uuid"
)

// Tree is a document body modeled as a flat node arena. Index 0 is always
// the body root. Stable IDs are held in a separate map so they remain
// attached to their element across reslicing of the arena.
type Tree struct {
	nodes  []Node
	byID   map[string]int
	SourcePath string // empty for an unsaved new document
}

// New creates an empty tree with just a body root.
func New() *Tree {
	t := &Tree{byID: make(map[string]int)}
	root := Node{Kind: KindBody, Parent: -1}
	root.ID = t.newID()
	t.nodes = append(t.nodes, root)
	t.byID[root.ID] = 0
	return t
}

// Root returns the arena index of the body root.
func (t *Tree) Root() int { return 0 }

// Node returns a pointer to the node at idx. Callers must not retain it
// across structural mutations (Insert/Remove may reallocate children
// slices held elsewhere, though never the backing nodes slice itself).
func (t *Tree) Node(idx int) *Node {
	if idx < 0 || idx >= len(t.nodes) || t.nodes[idx].deleted {
		return nil
	}
	return &t.nodes[idx]
}

// ByID resolves a stable ID to an arena index, reporting false if absent
// or tombstoned.
func (t *Tree) ByID(id string) (int, bool) {
	idx, ok := t.byID[id]
	if !ok || t.nodes[idx].deleted {
		return 0, false
	}
	return idx, true
}

// newID allocates a fresh 1-8 hex char stable ID, regenerating on the rare
// collision against the tree's existing ID set.
func (t *Tree) newID() string {
	for {
		raw := strings.ReplaceAll(uuid.New().String(), "-", "")
		id := raw[:8]
		if _, exists := t.byID[id]; !exists {
			return id
		}
	}
}

// SetRootID overrides the body root's stable ID, used only by a codec
// decoding a document that already carries its own root ID on disk —
// doctree.New always starts a fresh tree with a freshly-generated one.
func (t *Tree) SetRootID(id string) {
	old := t.nodes[0].ID
	delete(t.byID, old)
	t.nodes[0].ID = id
	t.byID[id] = 0
}

// Alloc appends a brand-new node to the arena (not yet linked to any
// parent) and returns its index. If n.ID is empty, a fresh one is assigned.
func (t *Tree) Alloc(n Node) int {
	if n.ID == "" {
		n.ID = t.newID()
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.byID[n.ID] = idx
	return idx
}

// InsertChild links child at position pos (clamped to [0, len]) among
// parent's children.
func (t *Tree) InsertChild(parent, child, pos int) {
	p := &t.nodes[parent]
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.children) {
		pos = len(p.children)
	}
	p.children = append(p.children, 0)
	copy(p.children[pos+1:], p.children[pos:])
	p.children[pos] = child
	t.nodes[child].Parent = parent
}

// AppendChild links child as the last child of parent.
func (t *Tree) AppendChild(parent, child int) {
	t.InsertChild(parent, child, len(t.nodes[parent].children))
}

// Unlink removes child from its parent's children slice without deleting
// the node itself (used by move, which relinks it elsewhere).
func (t *Tree) Unlink(child int) {
	p := t.nodes[child].Parent
	if p < 0 {
		return
	}
	parent := &t.nodes[p]
	for i, c := range parent.children {
		if c == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
}

// Remove tombstones a node and its entire subtree; the stable IDs remain
// reserved (never reused) but resolve to "not found" afterward.
func (t *Tree) Remove(idx int) {
	t.Unlink(idx)
	t.removeSubtree(idx)
}

func (t *Tree) removeSubtree(idx int) {
	n := &t.nodes[idx]
	n.deleted = true
	for _, c := range n.children {
		t.removeSubtree(c)
	}
}

// CloneSubtree deep-clones the subtree rooted at idx, assigning every
// cloned node a fresh stable ID, and returns the new root's index
// (unlinked from any parent).
func (t *Tree) CloneSubtree(idx int) int {
	src := t.nodes[idx]
	cp := src
	cp.ID = t.newID()
	cp.Parent = -1
	cp.children = nil
	cp.ParagraphProps = src.ParagraphProps.Clone()
	cp.RunProps = src.RunProps.Clone()
	if src.TableProps != nil {
		tp := *src.TableProps
		tp.ColumnWidths = append([]int(nil), src.TableProps.ColumnWidths...)
		cp.TableProps = &tp
	}
	if src.CellProps != nil {
		cpp := *src.CellProps
		if src.CellProps.Borders != nil {
			cpp.Borders = make(map[string]Border, len(src.CellProps.Borders))
			for k, v := range src.CellProps.Borders {
				cpp.Borders[k] = v
			}
		}
		cp.CellProps = &cpp
	}
	newIdx := t.Alloc(cp)
	for _, c := range src.children {
		childCopy := t.CloneSubtree(c)
		t.AppendChild(newIdx, childCopy)
	}
	return newIdx
}

// InnerText concatenates the text of every run descendant of idx, in
// document order; used by text-selector matching and replace_text.
func (t *Tree) InnerText(idx int) string {
	var b strings.Builder
	var walk func(int)
	walk = func(i int) {
		n := t.Node(i)
		if n == nil {
			return
		}
		if n.Kind == KindRun {
			if n.IsTab {
				b.WriteByte('\t')
			} else if n.Break == "line" {
				b.WriteByte('\n')
			} else {
				b.WriteString(n.Text)
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(idx)
	return b.String()
}

// Walk visits idx and every live descendant in document order.
func (t *Tree) Walk(idx int, fn func(int)) {
	n := t.Node(idx)
	if n == nil {
		return
	}
	fn(idx)
	for _, c := range n.children {
		t.Walk(c, fn)
	}
}
