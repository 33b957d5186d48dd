package session

import (
	"encoding/json"
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/events"
	"github.com/doxsess/docx-session-engine/internal/patch"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// fakeCodec serializes a tree to a simple recursive JSON shape built
// entirely from doctree's exported API, standing in for the real
// internal/wordxml codec in tests that don't need a real .docx byte
// format.
type fakeCodec struct{}

type fakeNode struct {
	ID       string              `json:"id"`
	Kind     doctree.Kind        `json:"kind"`
	Level    int                 `json:"level"`
	Text     string              `json:"text"`
	IsTab    bool                `json:"isTab"`
	Break    string              `json:"break"`
	Children []fakeNode          `json:"children,omitempty"`
}

func (fakeCodec) Encode(tree *doctree.Tree) ([]byte, error) {
	root := encodeNode(tree, tree.Root())
	return json.Marshal(root)
}

func encodeNode(tree *doctree.Tree, idx int) fakeNode {
	n := tree.Node(idx)
	fn := fakeNode{ID: n.ID, Kind: n.Kind, Level: n.Level, Text: n.Text, IsTab: n.IsTab, Break: n.Break}
	for _, c := range n.Children() {
		fn.Children = append(fn.Children, encodeNode(tree, c))
	}
	return fn
}

func (fakeCodec) Decode(data []byte) (*doctree.Tree, error) {
	var root fakeNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	tree := doctree.New()
	for _, c := range root.Children {
		decodeInto(tree, tree.Root(), c)
	}
	return tree, nil
}

func decodeInto(tree *doctree.Tree, parent int, fn fakeNode) {
	idx := tree.Alloc(doctree.Node{Kind: fn.Kind, Level: fn.Level, Text: fn.Text, IsTab: fn.IsTab, Break: fn.Break})
	tree.AppendChild(parent, idx)
	for _, c := range fn.Children {
		decodeInto(tree, idx, c)
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := wal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.CheckpointInterval = 3
	store.CompactThreshold = 1 << 30 // disable auto-compaction unless a test wants it
	return NewManager(store, fakeCodec{}, events.New(), WithAutoSave(false))
}

func addParagraphOp(text string) patch.Op {
	return patch.Op{Op: "add", Path: "/body", Value: map[string]any{"type": "paragraph", "text": text}}
}

func TestApplyPatchAdvancesCursorAndMatchesWALLength(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("p")}, false); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if sess.Cursor != 5 {
		t.Fatalf("expected cursor 5, got %d", sess.Cursor)
	}
	entries, err := m.store.ReadEntries(sess.ID)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != sess.Cursor {
		t.Fatalf("expected WAL length == cursor, got %d vs %d", len(entries), sess.Cursor)
	}
}

func TestCheckpointWrittenEveryInterval(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	for i := 0; i < 6; i++ {
		if _, err := m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("p")}, false); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if len(sess.CheckpointPositions) != 2 {
		t.Fatalf("expected checkpoints at 3 and 6, got %v", sess.CheckpointPositions)
	}
	if sess.CheckpointPositions[0] != 3 || sess.CheckpointPositions[1] != 6 {
		t.Fatalf("unexpected checkpoint positions %v", sess.CheckpointPositions)
	}
}

func TestUndoThenRedoHotPath(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	for i := 0; i < 3; i++ {
		m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("p")}, false)
	}
	if _, err := m.Undo(sess.ID, 2); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if sess.Cursor != 1 {
		t.Fatalf("expected cursor 1 after undoing 2 of 3, got %d", sess.Cursor)
	}
	treeBeforeRedo := sess.Tree
	if _, err := m.Redo(sess.ID, 2); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if sess.Cursor != 3 {
		t.Fatalf("expected cursor 3 after redo, got %d", sess.Cursor)
	}
	if sess.Tree != treeBeforeRedo {
		t.Fatal("expected redo hot-path to replay onto the existing tree, not rebuild a new one")
	}
}

func TestUndoClampsAtZero(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("p")}, false)
	res, err := m.Undo(sess.ID, 10)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if res.Position != 0 || sess.Cursor != 0 {
		t.Fatalf("expected undo to clamp at 0, got position %d cursor %d", res.Position, sess.Cursor)
	}
}

func TestRedoClampsAtWALLength(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("p")}, false)
	m.Undo(sess.ID, 1)
	res, err := m.Redo(sess.ID, 10)
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if res.Position != 1 || sess.Cursor != 1 {
		t.Fatalf("expected redo to clamp at WAL length 1, got position %d cursor %d", res.Position, sess.Cursor)
	}
}

func TestNewPatchAfterUndoDiscardsFuture(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("a")}, false)
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("b")}, false)
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("c")}, false)
	if _, err := m.Undo(sess.ID, 2); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("d")}, false); err != nil {
		t.Fatalf("apply after undo: %v", err)
	}
	entries, err := m.store.ReadEntries(sess.ID)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected branch to truncate WAL to 2 entries, got %d", len(entries))
	}
	if sess.Cursor != 2 {
		t.Fatalf("expected cursor 2 after branching, got %d", sess.Cursor)
	}
	res, err := m.Redo(sess.ID, 1)
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if res.Steps != 0 || sess.Cursor != 2 {
		t.Fatalf("expected redo past the discarded branch to be a no-op, got steps=%d cursor=%d", res.Steps, sess.Cursor)
	}
}

func TestCompactRefusesWhenRedoPendingUnlessForced(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("a")}, false)
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("b")}, false)
	m.Undo(sess.ID, 1)

	if err := m.Compact(sess.ID, false); err == nil {
		t.Fatal("expected compaction to be refused while redo is pending")
	}
	if err := m.Compact(sess.ID, true); err != nil {
		t.Fatalf("expected forced compaction to succeed, got %v", err)
	}
	entries, _ := m.store.ReadEntries(sess.ID)
	if len(entries) != 0 {
		t.Fatalf("expected WAL to be empty after compaction, got %d entries", len(entries))
	}
	if sess.Cursor != 0 {
		t.Fatalf("expected cursor reset to 0 after compaction, got %d", sess.Cursor)
	}
}

func TestGetHistoryReflectsAppliedPatches(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("a")}, false)
	m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("b")}, false)
	history, err := m.GetHistory(sess.ID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Position != 1 || history[1].Position != 2 {
		t.Fatalf("expected 1-indexed positions, got %v", history)
	}
}

func TestExternalChangePendingBlocksApplyPatch(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Create()
	sess.ExternalChangePending = true
	if _, err := m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("a")}, false); err == nil {
		t.Fatal("expected apply_patch to refuse while an external change is pending")
	}
	// a dry run must still be permitted so the caller can preview resolution.
	if _, err := m.ApplyPatch(sess.ID, []patch.Op{addParagraphOp("a")}, true); err != nil {
		t.Fatalf("expected dry run to be permitted during a pending external change, got %v", err)
	}
}
