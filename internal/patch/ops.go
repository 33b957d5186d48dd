package patch

import (
	"fmt"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/element"
	"github.com/doxsess/docx-session-engine/internal/path"
)

func doAdd(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.Value == nil {
		return docxerr.New(docxerr.PatchShape, "add requires a value")
	}
	p, err := path.Parse(op.Path)
	if err != nil {
		return err
	}

	if isInsertionPath(p) {
		parent, n, err := path.ResolveInsertion(tree, p)
		if err != nil {
			return err
		}
		buildTree, idxs, err := buildValue(tree, op.Value, dryRun)
		if err != nil {
			return err
		}
		res.CreatedID = buildTree.Node(idxs[0]).ID
		if !dryRun {
			for i, idx := range idxs {
				tree.InsertChild(parent, idx, n+i)
			}
		}
		return nil
	}

	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return err
	}
	if len(frontier) != 1 {
		return docxerr.WithPath(docxerr.PathResolution, p.String(), "add target must resolve to exactly one parent")
	}
	buildTree, idxs, err := buildValue(tree, op.Value, dryRun)
	if err != nil {
		return err
	}
	res.CreatedID = buildTree.Node(idxs[0]).ID
	if !dryRun {
		for _, idx := range idxs {
			tree.AppendChild(frontier[0], idx)
		}
	}
	return nil
}

// buildValue runs the element factory. In dry-run mode it builds into a
// scratch tree so the call being previewed never allocates nodes in the
// real document.
func buildValue(tree *doctree.Tree, value map[string]any, dryRun bool) (*doctree.Tree, []int, error) {
	target := tree
	if dryRun {
		target = doctree.New()
	}
	idxs, err := element.Build(target, value)
	if err != nil {
		return nil, nil, err
	}
	return target, idxs, nil
}

func isInsertionPath(p path.Path) bool {
	segs := p.Segments
	return len(segs) > 0 && segs[len(segs)-1].Kind == path.KindChildren
}

func doReplace(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.Value == nil {
		return docxerr.New(docxerr.PatchShape, "replace requires a value")
	}
	p, err := path.Parse(op.Path)
	if err != nil {
		return err
	}
	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return err
	}
	if len(frontier) == 0 {
		return docxerr.WithPath(docxerr.PathResolution, p.String(), "no element matched replace target")
	}
	res.MatchesFound = len(frontier)

	if len(p.Segments) > 0 && p.Segments[len(p.Segments)-1].Kind == path.KindStyle {
		return doReplaceStyle(tree, frontier, op.Value, dryRun, res)
	}

	for i, idx := range frontier {
		old := tree.Node(idx)
		if old == nil {
			continue
		}
		if i == 0 {
			res.ReplacedID = old.ID
		}
		parent := old.Parent
		pos := childPosition(tree, parent, idx)
		_, idxs, err := buildValue(tree, op.Value, dryRun)
		if err != nil {
			return err
		}
		if !dryRun {
			tree.Remove(idx)
			for j, ni := range idxs {
				tree.InsertChild(parent, ni, pos+j)
			}
		}
	}
	return nil
}

// doReplaceStyle implements spec.md 4.3's style-merge rule: when the final
// segment of a replace path is "style", the existing properties block is
// merged sub-property by sub-property rather than replaced wholesale, per
// spec.md 4.2's merge semantics. path.Resolve has already auto-created an
// empty properties block on every matched node for this case.
func doReplaceStyle(tree *doctree.Tree, frontier []int, patch map[string]any, dryRun bool, res *OpResult) error {
	for i, idx := range frontier {
		n := tree.Node(idx)
		if n == nil {
			continue
		}
		if i == 0 {
			res.ReplacedID = n.ID
		}
		if dryRun {
			continue
		}
		switch n.Kind {
		case doctree.KindParagraph, doctree.KindHeading:
			if n.ParagraphProps == nil {
				n.ParagraphProps = &doctree.ParagraphProps{}
			}
			element.MergeParagraphProps(n.ParagraphProps, patch)
		case doctree.KindRun:
			if n.RunProps == nil {
				n.RunProps = &doctree.RunProps{}
			}
			element.MergeRunStyle(n.RunProps, patch)
		case doctree.KindTable:
			if n.TableProps == nil {
				n.TableProps = &doctree.TableProps{}
			}
			element.MergeTableProps(n.TableProps, patch)
		case doctree.KindCell:
			if n.CellProps == nil {
				n.CellProps = &doctree.CellProps{}
			}
			element.MergeCellProps(n.CellProps, patch)
		default:
			return docxerr.WithPath(docxerr.PatchSemantic, "", fmt.Sprintf("element kind %q has no style properties to merge", n.Kind))
		}
	}
	return nil
}

func childPosition(tree *doctree.Tree, parent, child int) int {
	p := tree.Node(parent)
	if p == nil {
		return 0
	}
	for i, c := range p.Children() {
		if c == child {
			return i
		}
	}
	return len(p.Children())
}

func doRemove(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	p, err := path.Parse(op.Path)
	if err != nil {
		return err
	}
	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return err
	}
	if len(frontier) == 0 {
		return docxerr.WithPath(docxerr.PathResolution, p.String(), "no element matched remove target")
	}
	res.MatchesFound = len(frontier)
	res.RemovedID = tree.Node(frontier[0]).ID
	if !dryRun {
		for _, idx := range frontier {
			tree.Remove(idx)
		}
	}
	return nil
}

func doMove(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.From == "" {
		return docxerr.New(docxerr.PatchShape, "move requires from")
	}
	fromP, err := path.Parse(op.From)
	if err != nil {
		return err
	}
	srcFrontier, err := path.Resolve(tree, fromP)
	if err != nil {
		return err
	}
	if len(srcFrontier) != 1 {
		return docxerr.WithPath(docxerr.PathResolution, fromP.String(), "move source must resolve to exactly one element")
	}
	src := srcFrontier[0]
	res.SourceID = tree.Node(src).ID

	parent, pos, err := resolveMoveDestination(tree, op.Path)
	if err != nil {
		return err
	}
	if isDescendantOrSelf(tree, src, parent) {
		return docxerr.New(docxerr.PatchSemantic, "cannot move an element into its own subtree")
	}
	res.MovedID = res.SourceID
	if !dryRun {
		// A sibling anchor's position was taken with src still linked; when
		// src is an earlier sibling, unlinking it shifts the anchor left.
		if p, perr := path.Parse(op.Path); perr == nil && !isInsertionPath(p) &&
			tree.Node(src).Parent == parent && childPosition(tree, parent, src) < pos {
			pos--
		}
		tree.Unlink(src)
		tree.InsertChild(parent, src, pos)
	}
	return nil
}

func doCopy(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.From == "" {
		return docxerr.New(docxerr.PatchShape, "copy requires from")
	}
	fromP, err := path.Parse(op.From)
	if err != nil {
		return err
	}
	srcFrontier, err := path.Resolve(tree, fromP)
	if err != nil {
		return err
	}
	if len(srcFrontier) != 1 {
		return docxerr.WithPath(docxerr.PathResolution, fromP.String(), "copy source must resolve to exactly one element")
	}
	src := srcFrontier[0]
	res.SourceID = tree.Node(src).ID

	parent, pos, err := resolveDestination(tree, op.Path)
	if err != nil {
		return err
	}
	if !dryRun {
		clone := tree.CloneSubtree(src)
		tree.InsertChild(parent, clone, pos)
		res.CopyID = tree.Node(clone).ID
	}
	return nil
}

// resolveDestination resolves a copy destination path, which is either a
// children/N insertion point or a plain element path naming the parent the
// clone is appended to as its last child. Move uses resolveMoveDestination
// instead: its non-children/N anchor semantics differ (sibling, not child).
func resolveDestination(tree *doctree.Tree, raw string) (parent, pos int, err error) {
	p, err := path.Parse(raw)
	if err != nil {
		return 0, 0, err
	}
	if isInsertionPath(p) {
		return path.ResolveInsertion(tree, p)
	}
	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return 0, 0, err
	}
	if len(frontier) != 1 {
		return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(), "destination must resolve to exactly one parent")
	}
	parent = frontier[0]
	n := tree.Node(parent)
	return parent, len(n.Children()), nil
}

// resolveMoveDestination resolves a move destination path. A children/N
// path is an insertion point, same as resolveDestination. Any other path
// is a sibling anchor (spec.md 4.3): the moved element is inserted as a
// sibling immediately after the resolved element, not as its child.
func resolveMoveDestination(tree *doctree.Tree, raw string) (parent, pos int, err error) {
	p, err := path.Parse(raw)
	if err != nil {
		return 0, 0, err
	}
	if isInsertionPath(p) {
		return path.ResolveInsertion(tree, p)
	}
	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return 0, 0, err
	}
	if len(frontier) != 1 {
		return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(), "destination must resolve to exactly one anchor element")
	}
	anchor := frontier[0]
	n := tree.Node(anchor)
	if n == nil || n.Parent < 0 {
		return 0, 0, docxerr.WithPath(docxerr.PathResolution, p.String(), "destination anchor has no parent to insert a sibling into")
	}
	return n.Parent, childPosition(tree, n.Parent, anchor) + 1, nil
}

func isDescendantOrSelf(tree *doctree.Tree, ancestor, idx int) bool {
	found := false
	tree.Walk(ancestor, func(i int) {
		if i == idx {
			found = true
		}
	})
	return found
}

func doRemoveColumn(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.Column == nil {
		return docxerr.New(docxerr.PatchShape, "remove_column requires column")
	}
	col := *op.Column
	p, err := path.Parse(op.Path)
	if err != nil {
		return err
	}
	frontier, err := path.Resolve(tree, p)
	if err != nil {
		return err
	}
	if len(frontier) != 1 {
		return docxerr.WithPath(docxerr.PathResolution, p.String(), "remove_column target must resolve to exactly one table")
	}
	table := tree.Node(frontier[0])
	if table == nil || table.Kind != doctree.KindTable {
		return docxerr.WithPath(docxerr.PathResolution, p.String(), "remove_column target must be a table")
	}
	rows := table.Children()
	if len(rows) == 0 {
		res.ColumnIndex = col
		return nil
	}
	firstRowCells := tree.Node(rows[0]).Children()
	if col < 0 || col >= len(firstRowCells) {
		return docxerr.Newf(docxerr.PathResolution, "column %d out of range for table with %d columns", col, len(firstRowCells))
	}

	res.ColumnIndex = col
	res.RowsAffected = len(rows)
	if !dryRun {
		for _, row := range rows {
			cells := tree.Node(row).Children()
			if col < len(cells) {
				tree.Remove(cells[col])
			}
		}
	}
	return nil
}
