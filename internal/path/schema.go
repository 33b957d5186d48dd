package path

import (
	"fmt"
	"sort"
	"strings"

	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

// childSchema is the static table of parent-kind -> allowed child-kind set.
// Header and footer admit the same content kinds as the body (paragraph,
// heading, table, bookmark) since, structurally, this tree models
// header/footer content the same way as body content (spec.md 4.1); only
// the body may also contain section, header and footer elements.
var childSchema = map[Kind]map[Kind]bool{
	KindBody:      set(KindParagraph, KindHeading, KindTable, KindSection, KindHeader, KindFooter, KindBookmark, KindChildren),
	KindHeader:    set(KindParagraph, KindHeading, KindTable, KindBookmark, KindChildren),
	KindFooter:    set(KindParagraph, KindHeading, KindTable, KindBookmark, KindChildren),
	KindTable:     set(KindRow, KindStyle, KindChildren),
	KindRow:       set(KindCell, KindChildren),
	KindCell:      set(KindParagraph, KindTable, KindStyle, KindChildren),
	KindParagraph: set(KindRun, KindHyperlink, KindDrawing, KindStyle, KindBookmark, KindComment, KindChildren),
	KindHeading:   set(KindRun, KindHyperlink, KindDrawing, KindStyle, KindBookmark, KindComment, KindChildren),
	KindHyperlink: set(KindRun, KindChildren),
	KindComment:   set(KindParagraph, KindRun, KindChildren),
	KindFootnote:  set(KindParagraph, KindRun, KindChildren),
}

func set(kinds ...Kind) map[Kind]bool {
	m := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func allowedNames(m map[Kind]bool) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Validate checks that every consecutive (parent-kind, child-kind) pair in
// p is schema-legal, and that the first segment is body or a header/footer
// kind, per spec.md 4.1.
func Validate(p Path) error {
	if len(p.Segments) == 0 {
		return docxerr.WithPath(docxerr.PathSyntax, p.String(), "path has no segments")
	}
	first := p.Segments[0].Kind
	if first != KindBody && first != KindHeader && first != KindFooter {
		return docxerr.WithPath(docxerr.PathSchema, p.String(),
			fmt.Sprintf("path must start with body, header, or footer; got %q", first))
	}

	parent := first
	for i := 1; i < len(p.Segments); i++ {
		child := p.Segments[i].Kind
		allowed, ok := childSchema[parent]
		if !ok || !allowed[child] {
			var allowedSet map[Kind]bool
			if ok {
				allowedSet = allowed
			}
			return docxerr.WithPath(docxerr.PathSchema, p.String(),
				fmt.Sprintf("%s cannot be a direct child of %s; allowed: {%s}", child, parent, allowedNames(allowedSet)))
		}
		if child == KindChildren {
			// children/N must be the final segment.
			if i != len(p.Segments)-1 {
				return docxerr.WithPath(docxerr.PathSchema, p.String(), "children/N must be the final path segment")
			}
			continue
		}
		parent = child
	}
	return nil
}
