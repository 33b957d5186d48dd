package element

import (
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

func TestBuildParagraphWithText(t *testing.T) {
	tree := doctree.New()
	idxs, err := Build(tree, map[string]any{"type": "paragraph", "text": "hello"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(idxs) != 1 {
		t.Fatalf("expected 1 node, got %d", len(idxs))
	}
	if tree.InnerText(idxs[0]) != "hello" {
		t.Errorf("expected 'hello', got %q", tree.InnerText(idxs[0]))
	}
}

func TestBuildHeadingRequiresLevel(t *testing.T) {
	tree := doctree.New()
	_, err := Build(tree, map[string]any{"type": "heading", "text": "T"})
	if err == nil {
		t.Fatal("expected error for missing level")
	}
}

func TestBuildTableWithHeadersAndRows(t *testing.T) {
	tree := doctree.New()
	idxs, err := Build(tree, map[string]any{
		"type":    "table",
		"headers": []any{"A", "B"},
		"rows":    []any{[]any{"1", "2"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	table := tree.Node(idxs[0])
	if len(table.Children()) != 2 {
		t.Fatalf("expected 2 rows (header+data), got %d", len(table.Children()))
	}
}

func TestBuildImageConvertsToEMU(t *testing.T) {
	tree := doctree.New()
	idxs, err := Build(tree, map[string]any{"type": "image", "path": "a.png", "width": 100})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Node(idxs[0]).WidthEMU != 100*9525 {
		t.Errorf("expected EMU conversion, got %d", tree.Node(idxs[0]).WidthEMU)
	}
}

func TestMergeParagraphPropsNullRemoves(t *testing.T) {
	p := &doctree.ParagraphProps{}
	MergeParagraphProps(p, map[string]any{"alignment": "center"})
	if p.Alignment == nil || *p.Alignment != doctree.AlignCenter {
		t.Fatalf("expected alignment set")
	}
	MergeParagraphProps(p, map[string]any{"alignment": nil})
	if p.Alignment != nil {
		t.Error("expected alignment cleared by explicit null")
	}
}

func TestMergeIdempotent(t *testing.T) {
	p := &doctree.ParagraphProps{}
	patch := map[string]any{"spacing_before": 10.0}
	MergeParagraphProps(p, patch)
	first := *p.SpacingBefore
	MergeParagraphProps(p, patch)
	if *p.SpacingBefore != first {
		t.Error("merge should be idempotent")
	}
}
