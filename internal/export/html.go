// Package export renders a document tree into read-only output formats:
// HTML (via goquery), Markdown, and PDF (via a headless LibreOffice
// conversion of the codec-encoded .docx). None of these round-trip back
// into a session — they exist only for the browser inspector.
package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

// HTML renders tree as a standalone HTML document. The body is built as a
// raw string first, then parsed into a goquery.Document so headings pick
// up an anchor id derived from their own text — a DOM-level touch-up that
// is far more natural to express as a goquery selection-and-mutate pass
// than as more string-building.
func HTML(tree *doctree.Tree) ([]byte, error) {
	var body strings.Builder
	walkHTML(&body, tree, tree.Root())

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><head><meta charset=\"utf-8\"></head><body>" + body.String() + "</body></html>"))
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "parse generated html", err)
	}

	slug := make(map[string]int)
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		id := slugify(s.Text())
		if id == "" {
			id = "section"
		}
		slug[id]++
		if n := slug[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		s.SetAttr("id", id)
	})

	rendered, err := doc.Html()
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "serialize html", err)
	}
	return []byte(rendered), nil
}

func walkHTML(b *strings.Builder, tree *doctree.Tree, idx int) {
	n := tree.Node(idx)
	if n == nil {
		return
	}
	switch n.Kind {
	case doctree.KindBody:
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
	case doctree.KindHeading:
		level := n.Level
		if level < 1 || level > 6 {
			level = 1
		}
		fmt.Fprintf(b, "<h%d>", level)
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		fmt.Fprintf(b, "</h%d>\n", level)
	case doctree.KindParagraph:
		b.WriteString("<p>")
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		b.WriteString("</p>\n")
	case doctree.KindRun:
		open, close := runTags(n.RunProps)
		if n.IsTab {
			b.WriteString("\t")
			return
		}
		if n.Break != "" {
			b.WriteString("<br/>")
			return
		}
		b.WriteString(open)
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString(close)
	case doctree.KindHyperlink:
		fmt.Fprintf(b, `<a href="%s">`, html.EscapeString(n.URL))
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		b.WriteString("</a>")
	case doctree.KindDrawing:
		fmt.Fprintf(b, `<img src="%s" alt="%s"/>`, html.EscapeString(n.ImagePath), html.EscapeString(n.ImageAlt))
	case doctree.KindTable:
		b.WriteString("<table>\n")
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		b.WriteString("</table>\n")
	case doctree.KindRow:
		b.WriteString("<tr>")
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		b.WriteString("</tr>\n")
	case doctree.KindCell:
		b.WriteString("<td>")
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
		b.WriteString("</td>")
	default:
		for _, c := range n.Children() {
			walkHTML(b, tree, c)
		}
	}
}

func runTags(props *doctree.RunProps) (open, close string) {
	if props == nil {
		return "", ""
	}
	var o, c strings.Builder
	if props.Bold != nil && *props.Bold {
		o.WriteString("<strong>")
		c.WriteString("</strong>")
	}
	if props.Italic != nil && *props.Italic {
		o.WriteString("<em>")
		c.WriteString("</em>")
	}
	if props.Underline != nil && *props.Underline {
		o.WriteString("<u>")
		c.WriteString("</u>")
	}
	return o.String(), reverse(c.String())
}

// reverse flips close tag order so nested tags close innermost-first
// (</em></strong> rather than </strong></em>).
func reverse(s string) string {
	tags := strings.SplitAfter(s, ">")
	var out strings.Builder
	for i := len(tags) - 1; i >= 0; i-- {
		out.WriteString(tags[i])
	}
	return out.String()
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
