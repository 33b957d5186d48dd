package element

import (
	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

const emuPerPixel = 9525

// Build consumes a JSON value descriptor (already decoded to
// map[string]any) and allocates the corresponding unlinked subtree(s) in
// tree, returning their root indices. Every type but "list" returns a
// single index; "list" returns one paragraph per item.
func Build(tree *doctree.Tree, value map[string]any) ([]int, error) {
	typ, ok := str(value, "type")
	if !ok {
		return nil, docxerr.New(docxerr.PatchSemantic, `value is missing required "type" field`)
	}

	switch typ {
	case "paragraph":
		idx, err := buildParagraph(tree, value, doctree.KindParagraph)
		return []int{idx}, err
	case "heading":
		idx, err := buildHeading(tree, value)
		return []int{idx}, err
	case "table":
		idx, err := buildTable(tree, value)
		return []int{idx}, err
	case "row":
		idx, err := buildRow(tree, value)
		return []int{idx}, err
	case "cell":
		idx, err := buildCell(tree, value)
		return []int{idx}, err
	case "image":
		idx, err := buildImage(tree, value)
		return []int{idx}, err
	case "hyperlink":
		idx, err := buildHyperlink(tree, value)
		return []int{idx}, err
	case "page_break":
		idx := buildPageBreak(tree)
		return []int{idx}, nil
	case "section_break":
		idx := buildSectionBreak(tree, value)
		return []int{idx}, nil
	case "list":
		return buildList(tree, value)
	default:
		return nil, docxerr.Newf(docxerr.PatchSemantic, "unknown element type %q", typ)
	}
}

func buildParagraph(tree *doctree.Tree, value map[string]any, kind doctree.Kind) (int, error) {
	n := doctree.Node{Kind: kind}
	if props, ok := mapVal(value, "properties"); ok {
		n.ParagraphProps = parseParagraphProps(props)
	}
	idx := tree.Alloc(n)

	if text, ok := str(value, "text"); ok {
		run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: text})
		tree.AppendChild(idx, run)
	} else if runs, ok := sliceVal(value, "runs"); ok {
		for _, r := range runs {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			run, err := buildRun(tree, rm)
			if err != nil {
				return 0, err
			}
			tree.AppendChild(idx, run)
		}
	}
	return idx, nil
}

func buildHeading(tree *doctree.Tree, value map[string]any) (int, error) {
	level, ok := intVal(value, "level")
	if !ok || level < 1 || level > 9 {
		return 0, docxerr.New(docxerr.PatchSemantic, "heading requires level between 1 and 9")
	}
	idx, err := buildParagraph(tree, value, doctree.KindHeading)
	if err != nil {
		return 0, err
	}
	tree.Node(idx).Level = level
	return idx, nil
}

func buildRun(tree *doctree.Tree, rm map[string]any) (int, error) {
	n := doctree.Node{Kind: doctree.KindRun}
	if style, ok := mapVal(rm, "style"); ok {
		n.RunProps = parseRunStyle(style)
	}
	if b, ok := boolVal(rm, "tab"); ok && b {
		n.IsTab = true
		return tree.Alloc(n), nil
	}
	if brk, ok := str(rm, "break"); ok {
		n.Break = brk
		return tree.Alloc(n), nil
	}
	if text, ok := str(rm, "text"); ok {
		n.Text = text
	}
	return tree.Alloc(n), nil
}

func buildTable(tree *doctree.Tree, value map[string]any) (int, error) {
	n := doctree.Node{Kind: doctree.KindTable, TableProps: &doctree.TableProps{}}
	MergeTableProps(n.TableProps, value)
	if cols, ok := sliceVal(value, "columns"); ok {
		for _, c := range cols {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			w, _ := intVal(cm, "width")
			n.TableProps.ColumnWidths = append(n.TableProps.ColumnWidths, w)
		}
	}
	idx := tree.Alloc(n)

	if headers, ok := sliceVal(value, "headers"); ok && len(headers) > 0 {
		row, err := buildRowFromCells(tree, headers, true)
		if err != nil {
			return 0, err
		}
		tree.AppendChild(idx, row)
	}
	if rows, ok := sliceVal(value, "rows"); ok {
		for _, r := range rows {
			var cells []any
			switch rv := r.(type) {
			case []any:
				cells = rv
			default:
				return 0, docxerr.New(docxerr.PatchSemantic, "table rows[] entries must be arrays")
			}
			row, err := buildRowFromCells(tree, cells, false)
			if err != nil {
				return 0, err
			}
			tree.AppendChild(idx, row)
		}
	}
	return idx, nil
}

func buildRowFromCells(tree *doctree.Tree, cells []any, isHeader bool) (int, error) {
	row := tree.Alloc(doctree.Node{Kind: doctree.KindRow})
	for _, c := range cells {
		var cellIdx int
		var err error
		switch cv := c.(type) {
		case string:
			cellIdx, err = buildCell(tree, map[string]any{"text": cv})
		case map[string]any:
			cellIdx, err = buildCell(tree, cv)
		default:
			return 0, docxerr.New(docxerr.PatchSemantic, "table cell must be a string or object")
		}
		if err != nil {
			return 0, err
		}
		tree.AppendChild(row, cellIdx)
	}
	_ = isHeader // header/body distinction is the row's position, not a stored flag beyond value echo
	return row, nil
}

func buildRow(tree *doctree.Tree, value map[string]any) (int, error) {
	cells, _ := sliceVal(value, "cells")
	isHeader, _ := boolVal(value, "is_header")
	return buildRowFromCells(tree, cells, isHeader)
}

func buildCell(tree *doctree.Tree, value map[string]any) (int, error) {
	n := doctree.Node{Kind: doctree.KindCell, CellProps: &doctree.CellProps{}}
	MergeCellProps(n.CellProps, value)
	idx := tree.Alloc(n)

	if text, ok := str(value, "text"); ok {
		p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
		run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: text})
		tree.AppendChild(p, run)
		tree.AppendChild(idx, p)
	} else if runs, ok := sliceVal(value, "runs"); ok {
		p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
		for _, r := range runs {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			run, err := buildRun(tree, rm)
			if err != nil {
				return 0, err
			}
			tree.AppendChild(p, run)
		}
		tree.AppendChild(idx, p)
	} else if paras, ok := sliceVal(value, "paragraphs"); ok {
		for _, pv := range paras {
			pm, ok := pv.(map[string]any)
			if !ok {
				continue
			}
			pIdx, err := buildParagraph(tree, pm, doctree.KindParagraph)
			if err != nil {
				return 0, err
			}
			tree.AppendChild(idx, pIdx)
		}
	}
	return idx, nil
}

func buildImage(tree *doctree.Tree, value map[string]any) (int, error) {
	path, err := requireString(value, "path")
	if err != nil {
		return 0, err
	}
	n := doctree.Node{Kind: doctree.KindDrawing, ImagePath: path}
	if w, ok := intVal(value, "width"); ok {
		n.WidthEMU = w * emuPerPixel
	}
	if h, ok := intVal(value, "height"); ok {
		n.HeightEMU = h * emuPerPixel
	}
	if alt, ok := str(value, "alt"); ok {
		n.ImageAlt = alt
	}
	return tree.Alloc(n), nil
}

func buildHyperlink(tree *doctree.Tree, value map[string]any) (int, error) {
	url, err := requireString(value, "url")
	if err != nil {
		return 0, err
	}
	idx := tree.Alloc(doctree.Node{Kind: doctree.KindHyperlink, URL: url})
	text, ok := str(value, "text")
	if !ok {
		text = url
	}
	run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: text})
	tree.AppendChild(idx, run)
	return idx, nil
}

func buildPageBreak(tree *doctree.Tree) int {
	idx := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Break: "page"})
	tree.AppendChild(idx, run)
	return idx
}

func buildSectionBreak(tree *doctree.Tree, value map[string]any) int {
	bt, ok := str(value, "break_type")
	if !ok {
		bt = "nextPage"
	}
	return tree.Alloc(doctree.Node{Kind: doctree.KindSection, SectionBreakType: bt})
}

func buildList(tree *doctree.Tree, value map[string]any) ([]int, error) {
	items, ok := sliceVal(value, "items")
	if !ok {
		return nil, docxerr.New(docxerr.PatchSemantic, "list requires items[]")
	}
	ordered, _ := boolVal(value, "ordered")
	styleName := "ListBullet"
	if ordered {
		styleName = "ListNumber"
	}
	var out []int
	for i, it := range items {
		text, ok := it.(string)
		if !ok {
			return nil, docxerr.Newf(docxerr.PatchSemantic, "list item %d is not a string", i)
		}
		idx := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph, StyleName: styleName})
		run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: text})
		tree.AppendChild(idx, run)
		out = append(out, idx)
	}
	return out, nil
}

// StyleBlockFor returns the JSON-shaped style sub-object the caller
// supplied inside value["properties"] (paragraph/heading/table) or
// value["style"] (run), used by the patch engine's style-merge dispatch.
func StyleBlockFor(kind doctree.Kind, value map[string]any) map[string]any {
	switch kind {
	case doctree.KindRun:
		m, _ := mapVal(value, "style")
		return m
	default:
		m, _ := mapVal(value, "properties")
		return m
	}
}
