package external

import (
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

func paragraph(tree *doctree.Tree, text string) int {
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	r := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: text})
	tree.AppendChild(p, r)
	return p
}

func buildParagraphs(texts ...string) *doctree.Tree {
	tree := doctree.New()
	root := tree.Root()
	for _, t := range texts {
		tree.AppendChild(root, paragraph(tree, t))
	}
	return tree
}

func changeKinds(changes []Change) []ChangeKind {
	var out []ChangeKind
	for _, c := range changes {
		out = append(out, c.Kind)
	}
	return out
}

func TestDiffNoChangesYieldsEmptySummary(t *testing.T) {
	old := buildParagraphs("one", "two", "three")
	next := buildParagraphs("one", "two", "three")

	summary, changes := Diff(old, next)
	if summary != (Summary{}) {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}

func TestDiffDetectsAddition(t *testing.T) {
	old := buildParagraphs("one", "two")
	next := buildParagraphs("one", "two", "three")

	summary, changes := Diff(old, next)
	if summary.Added != 1 {
		t.Fatalf("expected 1 addition, got %+v", summary)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeAdded || changes[0].NewIndex != 2 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestDiffDetectsRemoval(t *testing.T) {
	old := buildParagraphs("one", "two", "three")
	next := buildParagraphs("one", "three")

	summary, changes := Diff(old, next)
	if summary.Removed != 1 {
		t.Fatalf("expected 1 removal, got %+v", summary)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeRemoved || changes[0].OldIndex != 1 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestDiffDetectsModification(t *testing.T) {
	old := buildParagraphs("the quick brown fox jumps", "static paragraph")
	next := buildParagraphs("the quick brown fox leaps", "static paragraph")

	summary, changes := Diff(old, next)
	if summary.Modified != 1 {
		t.Fatalf("expected 1 modification, got %+v summary=%+v", changes, summary)
	}
}

func TestDiffDetectsMove(t *testing.T) {
	old := buildParagraphs("alpha", "beta", "gamma")
	next := buildParagraphs("gamma", "alpha", "beta")

	summary, changes := Diff(old, next)
	if summary.Moved == 0 {
		t.Fatalf("expected at least one move, got summary=%+v changes=%+v", summary, changes)
	}
}

func TestDiffUnrelatedTextIsRemovePlusAddNotModify(t *testing.T) {
	old := buildParagraphs("completely unrelated content about cats")
	next := buildParagraphs("totally different subject matter on spreadsheets")

	summary, _ := Diff(old, next)
	if summary.Modified != 0 {
		t.Fatalf("expected no fuzzy match below threshold, got %+v", summary)
	}
	if summary.Added != 1 || summary.Removed != 1 {
		t.Fatalf("expected a remove+add pair, got %+v", summary)
	}
}

func TestTextSimilarityIdenticalIsOne(t *testing.T) {
	if got := textSimilarity("same text", "same text"); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestTextSimilarityEmptyIsZero(t *testing.T) {
	if got := textSimilarity("", "something"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
