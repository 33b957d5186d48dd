package path

import (
	"strings"
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

func buildSample() *doctree.Tree {
	t := doctree.New()
	root := t.Root()

	h := t.Alloc(doctree.Node{Kind: doctree.KindHeading, Level: 1, Text: "T"})
	t.AppendChild(root, h)
	run := t.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "T"})
	t.AppendChild(h, run)

	for i, txt := range []string{"first", "DRAFT one", "DRAFT two", "DRAFT three", "last"} {
		p := t.Alloc(doctree.Node{Kind: doctree.KindParagraph})
		t.AppendChild(root, p)
		r := t.Alloc(doctree.Node{Kind: doctree.KindRun, Text: txt})
		t.AppendChild(p, r)
		_ = i
	}
	return t
}

func TestParseAndResolveIndex(t *testing.T) {
	tree := buildSample()
	p, err := Parse("/body/paragraph[0]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := Resolve(tree, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if tree.InnerText(got[0]) != "first" {
		t.Errorf("expected 'first', got %q", tree.InnerText(got[0]))
	}
}

func TestResolveHeadingLevel(t *testing.T) {
	tree := buildSample()
	p, err := Parse("/body/heading[level=1]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := Resolve(tree, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || tree.InnerText(got[0]) != "T" {
		t.Fatalf("expected single heading with text T, got %v", got)
	}
}

func TestResolveTextContains(t *testing.T) {
	tree := buildSample()
	p, err := Parse("/body/paragraph[text~='DRAFT']")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := Resolve(tree, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
}

func TestResolveNegativeIndex(t *testing.T) {
	tree := buildSample()
	p, _ := Parse("/body/paragraph[-1]")
	got, err := Resolve(tree, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tree.InnerText(got[0]) != "last" {
		t.Errorf("expected 'last', got %q", tree.InnerText(got[0]))
	}
}

func TestResolveOutOfRange(t *testing.T) {
	tree := buildSample()
	p, _ := Parse("/body/paragraph[99]")
	_, err := Resolve(tree, p)
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
	if !strings.Contains(err.Error(), "valid range") {
		t.Errorf("expected valid-range message, got %v", err)
	}
}

func TestSchemaViolation(t *testing.T) {
	_, err := Parse("/body/run[0]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, _ := Parse("/body/run[0]")
	if err := Validate(p); err == nil {
		t.Fatal("expected schema violation")
	} else if !strings.Contains(err.Error(), "cannot be a direct child of") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestResolveInsertionAtIndexZero(t *testing.T) {
	tree := buildSample()
	p, err := Parse("/body/children/0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	parent, n, err := ResolveInsertion(tree, p)
	if err != nil {
		t.Fatalf("resolve insertion: %v", err)
	}
	if parent != tree.Root() || n != 0 {
		t.Errorf("expected (root, 0), got (%d, %d)", parent, n)
	}
}

func TestResolveInsertionLargeIndexAllowed(t *testing.T) {
	tree := buildSample()
	p, _ := Parse("/body/children/9999")
	_, n, err := ResolveInsertion(tree, p)
	if err != nil {
		t.Fatalf("resolve insertion: %v", err)
	}
	if n != 9999 {
		t.Errorf("expected n=9999, got %d", n)
	}
}

func TestStyleAutoCreate(t *testing.T) {
	tree := buildSample()
	p, err := Parse("/body/paragraph[0]/style")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := Resolve(tree, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if tree.Node(got[0]).ParagraphProps == nil {
		t.Error("expected ParagraphProps to be auto-created")
	}
}
