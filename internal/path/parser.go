package path

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

// Parse parses a printable path string into a typed Path, reporting
// PathSyntax errors for malformed input.
func Parse(raw string) (Path, error) {
	s := raw
	if !strings.HasPrefix(s, "/") {
		return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, "path must begin with '/'")
	}
	s = s[1:]
	if s == "" {
		return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, "path must have at least one segment")
	}

	toks := splitTopLevel(s)
	var segs []Segment
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok == "" {
			return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, "empty path segment")
		}
		if strings.EqualFold(tok, "children") {
			if i+1 >= len(toks) {
				return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, "children/N requires an index")
			}
			n, err := strconv.Atoi(toks[i+1])
			if err != nil {
				return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, fmt.Sprintf("bad children index %q", toks[i+1]))
			}
			segs = append(segs, Segment{Kind: KindChildren, Children: n})
			i++
			continue
		}
		seg, err := parseSegment(tok, raw)
		if err != nil {
			return Path{}, err
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return Path{}, docxerr.WithPath(docxerr.PathSyntax, raw, "path must have at least one segment")
	}
	return Path{Segments: segs, Raw: raw}, nil
}

// splitTopLevel splits a path body on '/' while respecting brackets and
// quotes, so that a quoted text selector containing '/' or a level
// combinator isn't mis-split.
func splitTopLevel(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == '[':
			depth++
			cur.WriteByte(c)
		case c == ']':
			depth--
			cur.WriteByte(c)
		case c == '/' && depth == 0:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// parseSegment parses one "kind[selector]" or "children/N" token. Note:
// children/N arrives pre-split as two tokens ("children" then "N") because
// '/' inside it is not bracketed; Parse handles that pair itself.
func parseSegment(tok, raw string) (Segment, error) {
	name := tok
	selStr := ""
	if idx := strings.IndexByte(tok, '['); idx >= 0 {
		if !strings.HasSuffix(tok, "]") {
			return Segment{}, docxerr.WithPath(docxerr.PathSyntax, raw, fmt.Sprintf("unterminated selector in %q", tok))
		}
		name = tok[:idx]
		selStr = tok[idx+1 : len(tok)-1]
	}

	kind, ok := aliases[strings.ToLower(name)]
	if !ok {
		return Segment{}, docxerr.WithPath(docxerr.PathSyntax, raw, fmt.Sprintf("unknown segment kind %q", name))
	}

	sel, err := parseSelector(selStr, raw)
	if err != nil {
		return Segment{}, err
	}
	return Segment{Kind: kind, Sel: sel}, nil
}

func parseSelector(s, raw string) (Selector, error) {
	var sel Selector
	if s == "" {
		return sel, nil
	}
	for _, clause := range splitSelectorClauses(s) {
		clause = strings.TrimSpace(clause)
		switch {
		case clause == "*":
			sel.Wildcard = true
		case strings.HasPrefix(clause, "id="):
			sel.ID = unquote(clause[len("id="):])
		case strings.HasPrefix(clause, "text~="):
			sel.TextLike = unquote(clause[len("text~="):])
		case strings.HasPrefix(clause, "text="):
			sel.TextEq = unquote(clause[len("text="):])
		case strings.HasPrefix(clause, "style="):
			sel.StyleName = unquote(clause[len("style="):])
		case strings.HasPrefix(clause, "level="):
			n, err := strconv.Atoi(strings.TrimSpace(clause[len("level="):]))
			if err != nil {
				return sel, docxerr.WithPath(docxerr.PathSyntax, raw, fmt.Sprintf("bad level selector %q", clause))
			}
			sel.HasLevel = true
			sel.Level = n
		default:
			n, err := strconv.Atoi(clause)
			if err != nil {
				return sel, docxerr.WithPath(docxerr.PathSyntax, raw, fmt.Sprintf("unrecognized selector clause %q", clause))
			}
			sel.HasIndex = true
			sel.Index = n
		}
	}
	return sel, nil
}

// splitSelectorClauses splits "a][b" style AND-combined clauses; the
// grammar only combines level=N with one other clause, joined with ']['.
func splitSelectorClauses(s string) []string {
	return strings.Split(s, "][")
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func joinSegments(segs []Segment) string {
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = segmentString(seg)
	}
	return strings.Join(parts, "/")
}

func segmentString(seg Segment) string {
	if seg.Kind == KindChildren {
		return fmt.Sprintf("children/%d", seg.Children)
	}
	name := string(seg.Kind)
	sel := seg.Sel
	switch {
	case sel.Wildcard:
		return fmt.Sprintf("%s[*]", name)
	case sel.ID != "":
		return fmt.Sprintf("%s[id='%s']", name, sel.ID)
	case sel.TextEq != "":
		return fmt.Sprintf("%s[text='%s']", name, sel.TextEq)
	case sel.TextLike != "":
		return fmt.Sprintf("%s[text~='%s']", name, sel.TextLike)
	case sel.StyleName != "":
		return fmt.Sprintf("%s[style='%s']", name, sel.StyleName)
	case sel.HasLevel && sel.HasIndex:
		return fmt.Sprintf("%s[level=%d][%d]", name, sel.Level, sel.Index)
	case sel.HasLevel:
		return fmt.Sprintf("%s[level=%d]", name, sel.Level)
	case sel.HasIndex:
		return fmt.Sprintf("%s[%d]", name, sel.Index)
	default:
		return name
	}
}
