package export

import (
	"fmt"
	"strings"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

// Markdown renders tree as CommonMark text. Table cells are joined on "
// | " with no column-width alignment pass — good enough for a quick diff
// view, not a publishing target (PDF covers that via LibreOffice).
func Markdown(tree *doctree.Tree) string {
	var b strings.Builder
	walkMarkdown(&b, tree, tree.Root())
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func walkMarkdown(b *strings.Builder, tree *doctree.Tree, idx int) {
	n := tree.Node(idx)
	if n == nil {
		return
	}
	switch n.Kind {
	case doctree.KindBody:
		for _, c := range n.Children() {
			walkMarkdown(b, tree, c)
		}
	case doctree.KindHeading:
		level := n.Level
		if level < 1 || level > 6 {
			level = 1
		}
		b.WriteString(strings.Repeat("#", level))
		b.WriteString(" ")
		b.WriteString(inlineText(tree, idx))
		b.WriteString("\n\n")
	case doctree.KindParagraph:
		b.WriteString(inlineText(tree, idx))
		b.WriteString("\n\n")
	case doctree.KindTable:
		writeMarkdownTable(b, tree, n)
	default:
		for _, c := range n.Children() {
			walkMarkdown(b, tree, c)
		}
	}
}

// inlineText renders a paragraph/heading's runs as one Markdown line,
// applying bold/italic markers and treating breaks as hard line breaks.
func inlineText(tree *doctree.Tree, idx int) string {
	n := tree.Node(idx)
	var b strings.Builder
	var walk func(int)
	walk = func(i int) {
		c := tree.Node(i)
		if c == nil {
			return
		}
		switch c.Kind {
		case doctree.KindRun:
			if c.IsTab {
				b.WriteString("\t")
				return
			}
			if c.Break != "" {
				b.WriteString("  \n")
				return
			}
			text := c.Text
			if c.RunProps != nil {
				if c.RunProps.Bold != nil && *c.RunProps.Bold {
					text = "**" + text + "**"
				}
				if c.RunProps.Italic != nil && *c.RunProps.Italic {
					text = "_" + text + "_"
				}
			}
			b.WriteString(text)
		case doctree.KindHyperlink:
			var inner strings.Builder
			for _, gc := range c.Children() {
				inner.WriteString(tree.InnerText(gc))
			}
			fmt.Fprintf(&b, "[%s](%s)", inner.String(), c.URL)
		default:
			for _, gc := range c.Children() {
				walk(gc)
			}
		}
	}
	for _, c := range n.Children() {
		walk(c)
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, tree *doctree.Tree, table *doctree.Node) {
	rows := table.Children()
	if len(rows) == 0 {
		return
	}
	for i, r := range rows {
		row := tree.Node(r)
		var cells []string
		for _, cIdx := range row.Children() {
			cells = append(cells, strings.ReplaceAll(tree.InnerText(cIdx), "\n", " "))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
		if i == 0 {
			b.WriteString("|")
			for range cells {
				b.WriteString(" --- |")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}
