// Package path implements the typed path language used to address elements
// within a document tree: parsing, schema validation, and resolution.
package path

import "github.com/doxsess/docx-session-engine/internal/doctree"

// Kind enumerates the segment kinds the path grammar accepts.
type Kind string

const (
	KindBody      Kind = "body"
	KindParagraph Kind = "paragraph"
	KindHeading   Kind = "heading"
	KindTable     Kind = "table"
	KindRow       Kind = "row"
	KindCell      Kind = "cell"
	KindRun       Kind = "run"
	KindHyperlink Kind = "hyperlink"
	KindDrawing   Kind = "drawing"
	KindStyle     Kind = "style"
	KindSection   Kind = "section"
	KindHeader    Kind = "header"
	KindFooter    Kind = "footer"
	KindBookmark  Kind = "bookmark"
	KindComment   Kind = "comment"
	KindFootnote  Kind = "footnote"
	KindChildren  Kind = "children" // special insertion token children/N
)

// aliases maps alternate spellings onto a canonical Kind.
var aliases = map[string]Kind{
	"p":         KindParagraph,
	"paragraph": KindParagraph,
	"heading":   KindHeading,
	"table":     KindTable,
	"row":       KindRow,
	"cell":      KindCell,
	"run":       KindRun,
	"hyperlink": KindHyperlink,
	"drawing":   KindDrawing,
	"style":     KindStyle,
	"section":   KindSection,
	"header":    KindHeader,
	"footer":    KindFooter,
	"bookmark":  KindBookmark,
	"comment":   KindComment,
	"footnote":  KindFootnote,
	"body":      KindBody,
	"children":  KindChildren,
}

// nodeKindFor maps a path segment Kind to the doctree.Kind it selects.
var nodeKindFor = map[Kind]doctree.Kind{
	KindBody:      doctree.KindBody,
	KindParagraph: doctree.KindParagraph,
	KindHeading:   doctree.KindHeading,
	KindTable:     doctree.KindTable,
	KindRow:       doctree.KindRow,
	KindCell:      doctree.KindCell,
	KindRun:       doctree.KindRun,
	KindHyperlink: doctree.KindHyperlink,
	KindDrawing:   doctree.KindDrawing,
	KindSection:   doctree.KindSection,
	KindHeader:    doctree.KindHeader,
	KindFooter:    doctree.KindFooter,
	KindBookmark:  doctree.KindBookmark,
	KindComment:   doctree.KindComment,
	KindFootnote:  doctree.KindFootnote,
}

// Selector narrows a segment's matches. Only the fields relevant to the
// segment's Kind are populated.
type Selector struct {
	HasIndex  bool
	Index     int // may be negative (counts from end)
	Wildcard  bool
	ID        string
	TextEq    string // exact, case-insensitive
	TextLike  string // substring, case-insensitive
	StyleName string
	HasLevel  bool
	Level     int // heading only, ANDs with any other selector
}

func (s Selector) isEmpty() bool {
	return !s.HasIndex && !s.Wildcard && s.ID == "" && s.TextEq == "" &&
		s.TextLike == "" && s.StyleName == "" && !s.HasLevel
}

// Segment is one typed path component.
type Segment struct {
	Kind     Kind
	Sel      Selector
	Children int // value of children/N, only meaningful when Kind == KindChildren
}

// Path is an ordered, non-empty sequence of segments.
type Path struct {
	Segments []Segment
	Raw      string
}

// String reconstructs a printable form of the path.
func (p Path) String() string {
	if p.Raw != "" {
		return p.Raw
	}
	return "/" + joinSegments(p.Segments)
}
