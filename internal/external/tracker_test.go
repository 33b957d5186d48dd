package external

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/session"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// jsonCodec is a minimal session.Codec standing in for internal/wordxml in
// tests that only care about the tracker's sync plumbing, not real OOXML
// bytes.
type jsonCodec struct{}

type jsonNode struct {
	Text     string     `json:"text,omitempty"`
	Kind     string     `json:"kind,omitempty"`
	Children []jsonNode `json:"children,omitempty"`
}

func (jsonCodec) Encode(tree *doctree.Tree) ([]byte, error) {
	return json.Marshal(encodeJSON(tree, tree.Root()))
}

func encodeJSON(tree *doctree.Tree, idx int) jsonNode {
	n := tree.Node(idx)
	jn := jsonNode{Text: n.Text, Kind: string(n.Kind)}
	for _, c := range n.Children() {
		jn.Children = append(jn.Children, encodeJSON(tree, c))
	}
	return jn
}

func (jsonCodec) Decode(data []byte) (*doctree.Tree, error) {
	var root jsonNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	tree := doctree.New()
	for _, c := range root.Children {
		decodeJSONInto(tree, tree.Root(), c)
	}
	return tree, nil
}

func decodeJSONInto(tree *doctree.Tree, parent int, jn jsonNode) {
	idx := tree.Alloc(doctree.Node{Kind: doctree.Kind(jn.Kind), Text: jn.Text})
	tree.AppendChild(parent, idx)
	for _, c := range jn.Children {
		decodeJSONInto(tree, idx, c)
	}
}

// fakeManager implements external.Manager entirely in memory, so tracker
// tests never touch a real WAL store.
type fakeManager struct {
	path     string
	snapshot session.SyncSnapshot
	folded   []wal.ExternalSyncPayload
}

func (m *fakeManager) ListSessions() []string { return []string{"s1"} }

func (m *fakeManager) SourcePathOf(id string) (string, error) { return m.path, nil }

func (m *fakeManager) PeekForSync(id string) (session.SyncSnapshot, error) {
	return m.snapshot, nil
}

func (m *fakeManager) FoldExternalSync(id string, payload wal.ExternalSyncPayload) error {
	m.folded = append(m.folded, payload)
	return nil
}

func (m *fakeManager) Codec() session.Codec { return jsonCodec{} }

func TestTrackerSyncFoldsAChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	oldTree := buildParagraphs("hello world")
	oldBytes, err := jsonCodec{}.Encode(oldTree)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, oldBytes, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	oldHash := hashBytes(oldBytes)

	mgr := &fakeManager{path: path, snapshot: session.SyncSnapshot{Tree: oldTree, LastSyncHash: oldHash}}
	tracker, err := New(mgr, nil)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}

	newTree := buildParagraphs("hello world", "a new paragraph")
	newBytes, err := jsonCodec{}.Encode(newTree)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, newBytes, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if err := tracker.Sync("s1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(mgr.folded) != 1 {
		t.Fatalf("expected exactly one folded sync, got %d", len(mgr.folded))
	}
	if mgr.folded[0].Summary.Added != 1 {
		t.Fatalf("expected 1 added paragraph in summary, got %+v", mgr.folded[0].Summary)
	}
}

func TestTrackerSyncIsNoopWhenHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	tree := buildParagraphs("unchanged")
	data, err := jsonCodec{}.Encode(tree)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	mgr := &fakeManager{path: path, snapshot: session.SyncSnapshot{Tree: tree, LastSyncHash: hashBytes(data)}}
	tracker, err := New(mgr, nil)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}

	if err := tracker.Sync("s1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(mgr.folded) != 0 {
		t.Fatalf("expected no folded sync for an unchanged file, got %d", len(mgr.folded))
	}
}
