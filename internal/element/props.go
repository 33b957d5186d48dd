package element

import "github.com/doxsess/docx-session-engine/internal/doctree"

// parseParagraphProps builds a fresh ParagraphProps from a "properties"
// object; absent fields stay nil.
func parseParagraphProps(m map[string]any) *doctree.ParagraphProps {
	if m == nil {
		return nil
	}
	p := &doctree.ParagraphProps{}
	if s, ok := str(m, "alignment"); ok {
		a := doctree.Alignment(s)
		p.Alignment = &a
	}
	if s, ok := str(m, "style"); ok {
		p.Style = &s
	}
	if n, ok := intVal(m, "spacing_before"); ok {
		p.SpacingBefore = &n
	}
	if n, ok := intVal(m, "spacing_after"); ok {
		p.SpacingAfter = &n
	}
	if f, ok := number(m, "line_spacing"); ok {
		p.LineSpacing = &f
	}
	if n, ok := intVal(m, "indent_left"); ok {
		p.IndentLeft = &n
	}
	if n, ok := intVal(m, "indent_right"); ok {
		p.IndentRight = &n
	}
	if n, ok := intVal(m, "indent_first_line"); ok {
		p.IndentFirst = &n
	}
	if n, ok := intVal(m, "indent_hanging"); ok {
		p.IndentHanging = &n
	}
	if s, ok := str(m, "shading"); ok {
		p.Shading = &s
	}
	if tabs, ok := sliceVal(m, "tabs"); ok {
		for _, t := range tabs {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			pos, _ := intVal(tm, "position")
			align, _ := str(tm, "alignment")
			leader, _ := str(tm, "leader")
			p.Tabs = append(p.Tabs, doctree.Tab{Position: pos, Align: align, Leader: leader})
		}
	}
	return p
}

// parseRunStyle builds a fresh RunProps from a run's "style" object.
func parseRunStyle(m map[string]any) *doctree.RunProps {
	if m == nil {
		return nil
	}
	p := &doctree.RunProps{}
	if b, ok := boolVal(m, "bold"); ok {
		p.Bold = &b
	}
	if b, ok := boolVal(m, "italic"); ok {
		p.Italic = &b
	}
	if b, ok := boolVal(m, "underline"); ok {
		p.Underline = &b
	}
	if b, ok := boolVal(m, "strike"); ok {
		p.Strike = &b
	}
	if n, ok := number(m, "font_size"); ok {
		halfPoints := int(n * 2)
		p.FontSizeHalfP = &halfPoints
	}
	if s, ok := str(m, "font_name"); ok {
		p.FontName = &s
	}
	if s, ok := str(m, "color"); ok {
		p.Color = &s
	}
	if s, ok := str(m, "highlight"); ok {
		p.Highlight = &s
	}
	if s, ok := str(m, "vertical_align"); ok {
		va := doctree.RunVerticalAlign(s)
		p.VerticalAlign = &va
	}
	return p
}
