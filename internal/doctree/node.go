// Package doctree models an OOXML document body as a flat node arena with
// parent/child indices, per the spec's arena+index design note: Go has no
// mature mutable-DOM OOXML codec in the dependency corpus, so the tree is
// represented as a slice of Nodes addressed by integer index rather than a
// pointer-linked DOM.
package doctree

// Kind enumerates the distinguishable node kinds a document tree can hold.
type Kind string

const (
	KindBody       Kind = "body"
	KindParagraph  Kind = "paragraph"
	KindHeading    Kind = "heading"
	KindRun        Kind = "run"
	KindTable      Kind = "table"
	KindRow        Kind = "row"
	KindCell       Kind = "cell"
	KindHyperlink  Kind = "hyperlink"
	KindDrawing    Kind = "drawing"
	KindSection    Kind = "section"
	KindHeader     Kind = "header"
	KindFooter     Kind = "footer"
	KindBookmark   Kind = "bookmark"
	KindComment    Kind = "comment"
	KindFootnote   Kind = "footnote"
	KindStyle      Kind = "style" // properties container
)

// Alignment, VerticalAlign and other small enums used by ParagraphProps/RunProps.
type Alignment string

const (
	AlignLeft    Alignment = "left"
	AlignCenter  Alignment = "center"
	AlignRight   Alignment = "right"
	AlignJustify Alignment = "justify"
)

type VerticalAlign string

const (
	VAlignTop    VerticalAlign = "top"
	VAlignCenter VerticalAlign = "center"
	VAlignBottom VerticalAlign = "bottom"
)

type RunVerticalAlign string

const (
	RunSuperscript RunVerticalAlign = "superscript"
	RunSubscript   RunVerticalAlign = "subscript"
	RunBaseline    RunVerticalAlign = "baseline"
)

// Tab describes a single paragraph tab stop.
type Tab struct {
	Position int
	Align    string
	Leader   string
}

// Border describes one side of a border set (table, cell).
type Border struct {
	Style string
	Size  int
	Color string
}

// ParagraphProps holds the mutable formatting block of a paragraph/heading.
// Every field is a pointer so that "absent" (nil) is distinguishable from
// "explicitly cleared" during merge (spec.md 4.2 merge semantics).
type ParagraphProps struct {
	Alignment     *Alignment
	Style         *string
	SpacingBefore *int
	SpacingAfter  *int
	LineSpacing   *float64
	IndentLeft    *int
	IndentRight   *int
	IndentFirst   *int
	IndentHanging *int
	Tabs          []Tab
	Shading       *string
}

// Clone returns a deep copy so merges never alias a shared props block.
func (p *ParagraphProps) Clone() *ParagraphProps {
	if p == nil {
		return nil
	}
	cp := *p
	if len(p.Tabs) > 0 {
		cp.Tabs = append([]Tab(nil), p.Tabs...)
	}
	return &cp
}

// RunProps holds the mutable character-formatting block of a run.
type RunProps struct {
	Bold          *bool
	Italic        *bool
	Underline     *bool
	Strike        *bool
	FontSizeHalfP *int // half-points
	FontName      *string
	Color         *string
	Highlight     *string
	VerticalAlign *RunVerticalAlign
}

func (p *RunProps) Clone() *RunProps {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// TableProps holds table-level formatting.
type TableProps struct {
	BorderStyle string
	BorderSize  int
	Width       int
	WidthType   string // pct, dxa, auto
	TableStyle  string
	Alignment   string
	ColumnWidths []int
}

// CellProps holds cell-level formatting.
type CellProps struct {
	Width         int
	VerticalAlign VerticalAlign
	Shading       string
	ColSpan       int
	RowSpan       string // restart, continue
	Borders       map[string]Border
}

// Node is one element of the arena. Exactly one of the *Props fields is
// populated according to Kind; text-bearing kinds use Text/Break/Tab.
type Node struct {
	ID     string
	Kind   Kind
	Parent int // arena index, -1 for the body root
	Level  int // heading level 1-9, 0 otherwise

	Text      string // run text, inner text for style selectors
	IsTab     bool   // run is a tab character
	Break     string // "", line, page, column (run break kind)
	URL       string // hyperlink target
	ImagePath string
	ImageAlt  string
	WidthEMU  int
	HeightEMU int
	StyleName string // named style on paragraph/table/run (shorthand)
	SectionBreakType string // nextPage, continuous, evenPage, oddPage

	ParagraphProps *ParagraphProps
	RunProps       *RunProps
	TableProps     *TableProps
	CellProps      *CellProps

	children []int
	deleted  bool
}

// Children returns a copy of this node's child indices in order.
func (n *Node) Children() []int {
	out := make([]int, len(n.children))
	copy(out, n.children)
	return out
}
