package patch

import (
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

func twoRunParagraph(tree *doctree.Tree, parent int, first, second string) int {
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	tree.AppendChild(parent, p)
	r1 := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: first})
	tree.AppendChild(p, r1)
	r2 := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: second})
	tree.AppendChild(p, r2)
	return p
}

func TestAddAppendsParagraph(t *testing.T) {
	tree := doctree.New()
	resp, err := Apply(tree, []Op{{
		Op:   "add",
		Path: "/body/children/0",
		Value: map[string]any{
			"type": "paragraph",
			"text": "hello",
		},
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !resp.Success || resp.Applied != 1 {
		t.Fatalf("expected success, got %+v", resp)
	}
	root := tree.Node(tree.Root())
	if len(root.Children()) != 1 {
		t.Fatalf("expected 1 child, got %d", len(root.Children()))
	}
}

func TestAddDryRunDoesNotMutate(t *testing.T) {
	tree := doctree.New()
	resp, err := Apply(tree, []Op{{
		Op:    "add",
		Path:  "/body/children/0",
		Value: map[string]any{"type": "paragraph", "text": "hello"},
	}}, true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].Status != StatusWouldSucceed {
		t.Fatalf("expected would_succeed, got %s", resp.Operations[0].Status)
	}
	if len(tree.Node(tree.Root()).Children()) != 0 {
		t.Fatal("dry run must not mutate the tree")
	}
}

func TestTooManyOperationsRejected(t *testing.T) {
	tree := doctree.New()
	ops := make([]Op, 11)
	for i := range ops {
		ops[i] = Op{Op: "add", Path: "/body/children/0", Value: map[string]any{"type": "paragraph", "text": "x"}}
	}
	_, err := Apply(tree, ops, false)
	if err == nil {
		t.Fatal("expected PatchShape error for batch over 10 operations")
	}
}

// TestReplaceTextAcrossRuns covers a match spanning two runs, verifying the
// first run's formatting (bold) survives the splice and the second run's
// overlapping slice is removed without touching its unrelated suffix.
func TestReplaceTextAcrossRuns(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	tree.AppendChild(root, p)
	bold := true
	r1 := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "The qu", RunProps: &doctree.RunProps{Bold: &bold}})
	tree.AppendChild(p, r1)
	r2 := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "ick fox jumps"})
	tree.AppendChild(p, r2)

	resp, err := Apply(tree, []Op{{
		Op:      "replace_text",
		Find:    "quick",
		Replace: "slow",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].ReplacementsMade != 1 {
		t.Fatalf("expected 1 replacement, got %+v", resp.Operations[0])
	}
	if tree.InnerText(p) != "The slow fox jumps" {
		t.Fatalf("unexpected text: %q", tree.InnerText(p))
	}
	if tree.Node(r1).Text != "The slow" {
		t.Errorf("expected replacement text in first run, got %q", tree.Node(r1).Text)
	}
	if !*tree.Node(r1).RunProps.Bold {
		t.Error("expected first run's bold formatting to survive")
	}
	if tree.Node(r2).Text != " fox jumps" {
		t.Errorf("expected second run's overlap removed, got %q", tree.Node(r2).Text)
	}
}

func TestReplaceTextMaxCount(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	tree.AppendChild(root, p)
	r := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "foo foo foo"})
	tree.AppendChild(p, r)

	one := 1
	resp, err := Apply(tree, []Op{{
		Op: "replace_text", Find: "foo", Replace: "bar", MaxCount: &one,
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].MatchesFound != 3 {
		t.Errorf("expected 3 matches found, got %d", resp.Operations[0].MatchesFound)
	}
	if resp.Operations[0].ReplacementsMade != 1 {
		t.Errorf("expected 1 replacement applied, got %d", resp.Operations[0].ReplacementsMade)
	}
	if tree.InnerText(p) != "bar foo foo" {
		t.Errorf("unexpected text: %q", tree.InnerText(p))
	}
}

// TestReplaceTextDefaultMaxCountIsOne ensures an omitted max_count replaces
// only the first match (spec.md 4.3/6 default of 1), not every occurrence.
func TestReplaceTextDefaultMaxCountIsOne(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	tree.AppendChild(root, p)
	r := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "foo foo foo"})
	tree.AppendChild(p, r)

	resp, err := Apply(tree, []Op{{
		Op: "replace_text", Find: "foo", Replace: "bar",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].MatchesFound != 3 {
		t.Errorf("expected 3 matches found, got %d", resp.Operations[0].MatchesFound)
	}
	if resp.Operations[0].ReplacementsMade != 1 {
		t.Errorf("expected default max_count of 1 replacement, got %d", resp.Operations[0].ReplacementsMade)
	}
	if tree.InnerText(p) != "bar foo foo" {
		t.Errorf("unexpected text: %q", tree.InnerText(p))
	}
}

// TestRemoveWildcardBatch removes every DRAFT paragraph in one batch call.
func TestRemoveWildcardBatch(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	twoRunParagraph(tree, root, "keep", " this")
	twoRunParagraph(tree, root, "DRAFT", " one")
	twoRunParagraph(tree, root, "DRAFT", " two")
	twoRunParagraph(tree, root, "keep", " that")

	resp, err := Apply(tree, []Op{{
		Op:   "remove",
		Path: `/body/paragraph[text~="DRAFT"]`,
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].MatchesFound != 2 {
		t.Fatalf("expected 2 matches, got %+v", resp.Operations[0])
	}
	remaining := tree.Node(root).Children()
	if len(remaining) != 2 {
		t.Fatalf("expected 2 paragraphs left, got %d", len(remaining))
	}
}

func TestMoveRejectsOwnSubtree(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	outer := tree.Alloc(doctree.Node{Kind: doctree.KindTable})
	tree.AppendChild(root, outer)
	row := tree.Alloc(doctree.Node{Kind: doctree.KindRow})
	tree.AppendChild(outer, row)

	resp, err := Apply(tree, []Op{{
		Op:   "move",
		From: "/body/table[0]",
		Path: "/body/table[0]/row[0]/children/0",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].Status != StatusError {
		t.Fatalf("expected move into own subtree to fail, got %+v", resp.Operations[0])
	}
	if len(tree.Node(outer).Children()) != 1 {
		t.Fatal("failed move must not mutate the tree")
	}
}

// TestMoveToSiblingAnchorInsertsAfter exercises spec.md 4.3's sibling-anchor
// move destination: a destination path that does not end in children/N
// names an element the moved node is inserted after, as its sibling — not
// as a new child appended inside that element.
func TestMoveToSiblingAnchorInsertsAfter(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	one := twoRunParagraph(tree, root, "one", "")
	_ = one
	twoRunParagraph(tree, root, "two", "")
	three := twoRunParagraph(tree, root, "three", "")

	resp, err := Apply(tree, []Op{{
		Op:   "move",
		From: "/body/paragraph[2]",
		Path: "/body/paragraph[0]",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].Status != StatusSuccess {
		t.Fatalf("expected move to succeed, got %+v", resp.Operations[0])
	}

	children := tree.Node(root).Children()
	if len(children) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(children))
	}
	if children[0] != one {
		t.Fatalf("expected anchor paragraph to stay first, got order %v", children)
	}
	if children[1] != three {
		t.Fatalf("expected moved paragraph to land as the anchor's next sibling, got order %v", children)
	}
	for _, c := range children {
		if tree.Node(c).Parent != root {
			t.Fatalf("moved paragraph must remain a sibling of the anchor, not its child: %+v", tree.Node(c))
		}
	}
}

func TestCopyCreatesIndependentSubtree(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	twoRunParagraph(tree, root, "a", "b")

	resp, err := Apply(tree, []Op{{
		Op:   "copy",
		From: "/body/paragraph[0]",
		Path: "/body/children/1",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	res := resp.Operations[0]
	if res.CopyID == "" || res.CopyID == res.SourceID {
		t.Fatalf("expected a distinct copy id, got %+v", res)
	}
	if len(tree.Node(root).Children()) != 2 {
		t.Fatalf("expected 2 paragraphs after copy, got %d", len(tree.Node(root).Children()))
	}
}

func TestRemoveColumnDeletesCellFromEveryRow(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	table := tree.Alloc(doctree.Node{Kind: doctree.KindTable})
	tree.AppendChild(root, table)
	for r := 0; r < 2; r++ {
		row := tree.Alloc(doctree.Node{Kind: doctree.KindRow})
		tree.AppendChild(table, row)
		for c := 0; c < 3; c++ {
			cell := tree.Alloc(doctree.Node{Kind: doctree.KindCell})
			tree.AppendChild(row, cell)
		}
	}
	col := 1
	resp, err := Apply(tree, []Op{{
		Op:     "remove_column",
		Path:   "/body/table[0]",
		Column: &col,
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].RowsAffected != 2 {
		t.Fatalf("expected 2 rows affected, got %+v", resp.Operations[0])
	}
	for _, rowIdx := range tree.Node(table).Children() {
		if len(tree.Node(rowIdx).Children()) != 2 {
			t.Fatalf("expected 2 cells left per row, got %d", len(tree.Node(rowIdx).Children()))
		}
	}
}

func TestReplaceOnStylePathMergesInsteadOfReplacing(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	p := tree.Alloc(doctree.Node{Kind: doctree.KindParagraph})
	tree.AppendChild(root, p)
	run := tree.Alloc(doctree.Node{Kind: doctree.KindRun, Text: "hi"})
	tree.AppendChild(p, run)

	centered := "center"
	tree.Node(p).ParagraphProps = &doctree.ParagraphProps{Alignment: (*doctree.Alignment)(&centered)}

	resp, err := Apply(tree, []Op{{
		Op:    "replace",
		Path:  "/body/paragraph[0]/style",
		Value: map[string]any{"spacing_before": float64(120)},
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Operations[0])
	}
	props := tree.Node(p).ParagraphProps
	if props.Alignment == nil || *props.Alignment != doctree.AlignCenter {
		t.Fatal("existing alignment must survive an unrelated style merge")
	}
	if props.SpacingBefore == nil || *props.SpacingBefore != 120 {
		t.Fatal("expected spacing_before to be set by the merge")
	}

	// Applying the same merge twice must be idempotent (Testable Property 5).
	if _, err := Apply(tree, []Op{{
		Op:    "replace",
		Path:  "/body/paragraph[0]/style",
		Value: map[string]any{"spacing_before": float64(120)},
	}}, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if *tree.Node(p).ParagraphProps.SpacingBefore != 120 {
		t.Fatal("repeated merge must be idempotent")
	}
}

func TestReplaceTextEmptyReplaceIsError(t *testing.T) {
	tree := doctree.New()
	root := tree.Root()
	twoRunParagraph(tree, root, "Hel", "lo")

	resp, err := Apply(tree, []Op{{
		Op:      "replace_text",
		Find:    "Hel",
		Replace: "",
	}}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resp.Operations[0].Status != StatusError {
		t.Fatalf("expected empty replace to error, got %+v", resp.Operations[0])
	}
}
