package element

import "github.com/doxsess/docx-session-engine/internal/doctree"

// MergeParagraphProps applies patch sub-properties onto dst in place.
// Absent keys are left untouched; a JSON null explicitly clears the
// corresponding field (spec.md 4.2 merge semantics). Applying the same
// patch twice is idempotent since each key is set directly rather than
// combined with its previous value.
func MergeParagraphProps(dst *doctree.ParagraphProps, patch map[string]any) {
	if v, present := patch["alignment"]; present {
		if v == nil {
			dst.Alignment = nil
		} else if s, ok := v.(string); ok {
			a := doctree.Alignment(s)
			dst.Alignment = &a
		}
	}
	if v, present := patch["style"]; present {
		if v == nil {
			dst.Style = nil
		} else if s, ok := v.(string); ok {
			dst.Style = &s
		}
	}
	mergeIntField(patch, "spacing_before", &dst.SpacingBefore)
	mergeIntField(patch, "spacing_after", &dst.SpacingAfter)
	if v, present := patch["line_spacing"]; present {
		if v == nil {
			dst.LineSpacing = nil
		} else if f, ok := toFloat(v); ok {
			dst.LineSpacing = &f
		}
	}
	mergeIntField(patch, "indent_left", &dst.IndentLeft)
	mergeIntField(patch, "indent_right", &dst.IndentRight)
	mergeIntField(patch, "indent_first_line", &dst.IndentFirst)
	mergeIntField(patch, "indent_hanging", &dst.IndentHanging)
	if v, present := patch["shading"]; present {
		if v == nil {
			dst.Shading = nil
		} else if s, ok := v.(string); ok {
			dst.Shading = &s
		}
	}
	if v, present := patch["tabs"]; present {
		if v == nil {
			dst.Tabs = nil
		} else if arr, ok := v.([]any); ok {
			dst.Tabs = nil
			for _, t := range arr {
				tm, ok := t.(map[string]any)
				if !ok {
					continue
				}
				pos, _ := intVal(tm, "position")
				align, _ := str(tm, "alignment")
				leader, _ := str(tm, "leader")
				dst.Tabs = append(dst.Tabs, doctree.Tab{Position: pos, Align: align, Leader: leader})
			}
		}
	}
}

// MergeRunStyle applies patch sub-properties onto dst in place.
func MergeRunStyle(dst *doctree.RunProps, patch map[string]any) {
	mergeBoolField(patch, "bold", &dst.Bold)
	mergeBoolField(patch, "italic", &dst.Italic)
	mergeBoolField(patch, "underline", &dst.Underline)
	mergeBoolField(patch, "strike", &dst.Strike)
	if v, present := patch["font_size"]; present {
		if v == nil {
			dst.FontSizeHalfP = nil
		} else if f, ok := toFloat(v); ok {
			hp := int(f * 2)
			dst.FontSizeHalfP = &hp
		}
	}
	if v, present := patch["font_name"]; present {
		if v == nil {
			dst.FontName = nil
		} else if s, ok := v.(string); ok {
			dst.FontName = &s
		}
	}
	if v, present := patch["color"]; present {
		if v == nil {
			dst.Color = nil
		} else if s, ok := v.(string); ok {
			dst.Color = &s
		}
	}
	if v, present := patch["highlight"]; present {
		if v == nil {
			dst.Highlight = nil
		} else if s, ok := v.(string); ok {
			dst.Highlight = &s
		}
	}
	if v, present := patch["vertical_align"]; present {
		if v == nil {
			dst.VerticalAlign = nil
		} else if s, ok := v.(string); ok {
			va := doctree.RunVerticalAlign(s)
			dst.VerticalAlign = &va
		}
	}
}

// MergeTableProps applies patch sub-properties onto dst in place.
func MergeTableProps(dst *doctree.TableProps, patch map[string]any) {
	if s, ok := str(patch, "border_style"); ok {
		dst.BorderStyle = s
	}
	if n, ok := intVal(patch, "border_size"); ok {
		dst.BorderSize = n
	}
	if n, ok := intVal(patch, "width"); ok {
		dst.Width = n
	}
	if s, ok := str(patch, "width_type"); ok {
		dst.WidthType = s
	}
	if s, ok := str(patch, "table_style"); ok {
		dst.TableStyle = s
	}
	if s, ok := str(patch, "table_alignment"); ok {
		dst.Alignment = s
	}
}

// MergeCellProps applies patch sub-properties onto dst in place; borders
// merges side by side rather than replacing the whole set.
func MergeCellProps(dst *doctree.CellProps, patch map[string]any) {
	if n, ok := intVal(patch, "width"); ok {
		dst.Width = n
	}
	if s, ok := str(patch, "vertical_align"); ok {
		dst.VerticalAlign = doctree.VerticalAlign(s)
	}
	if s, ok := str(patch, "shading"); ok {
		dst.Shading = s
	}
	if n, ok := intVal(patch, "col_span"); ok {
		dst.ColSpan = n
	}
	if s, ok := str(patch, "row_span"); ok {
		dst.RowSpan = s
	}
	if borders, ok := mapVal(patch, "borders"); ok {
		if dst.Borders == nil {
			dst.Borders = make(map[string]doctree.Border)
		}
		for side, v := range borders {
			bm, ok := v.(map[string]any)
			if !ok {
				continue
			}
			b := dst.Borders[side]
			if s, ok := str(bm, "style"); ok {
				b.Style = s
			}
			if n, ok := intVal(bm, "size"); ok {
				b.Size = n
			}
			if s, ok := str(bm, "color"); ok {
				b.Color = s
			}
			dst.Borders[side] = b
		}
	}
}

func mergeIntField(patch map[string]any, key string, field **int) {
	v, present := patch[key]
	if !present {
		return
	}
	if v == nil {
		*field = nil
		return
	}
	if f, ok := toFloat(v); ok {
		n := int(f)
		*field = &n
	}
}

func mergeBoolField(patch map[string]any, key string, field **bool) {
	v, present := patch[key]
	if !present {
		return
	}
	if v == nil {
		*field = nil
		return
	}
	if b, ok := v.(bool); ok {
		*field = &b
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
