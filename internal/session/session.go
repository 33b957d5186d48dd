// Package session generalizes the teacher's SQLite-backed conversation
// session manager (internal/session.Manager in the teacher repo) into a
// WAL-backed document session manager: Create/SetSession/ListSessions
// generalize directly; AddMessage/GetMessages become apply_patch/
// GetHistory; RecordFileChange becomes the auto-save and external-sync
// bookkeeping below.
package session

import (
	"sync"
	"time"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

// Codec converts between a document tree and the on-disk bytes stored as
// a session's baseline and checkpoints. Production callers wire in
// internal/wordxml.Codec; it is an interface here so the manager does not
// import the OOXML codec directly.
type Codec interface {
	Decode(data []byte) (*doctree.Tree, error)
	Encode(tree *doctree.Tree) ([]byte, error)
}

// Session is one live, in-memory document session. All mutation goes
// through its mutex, generalizing the teacher's per-resource locking
// idiom (Engine.mu) to one mutex per session.
type Session struct {
	mu sync.Mutex

	ID                  string
	SourcePath          string
	Tree                *doctree.Tree
	Cursor              int
	CreatedAt           time.Time
	LastModifiedAt      time.Time
	CheckpointPositions []int

	// ExternalChangePending is set when an unacknowledged external-sync
	// entry is the most recent timeline event; apply_patch refuses until
	// the caller acknowledges it (spec.md 9's resolved open question).
	ExternalChangePending bool

	// lastSyncHash is the content hash of the bytes this session last
	// wrote to or read from SourcePath, used by the external tracker to
	// tell its own auto-save writes apart from a foreign edit.
	lastSyncHash string
}

// HistoryItem is one lightweight timeline entry returned by get_history.
type HistoryItem struct {
	Position    int       `json:"position"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// OpResult mirrors the result shape callers expect from undo/redo/jump.
type OpResult struct {
	Position int    `json:"position"`
	Steps    int    `json:"steps"`
	Message  string `json:"message"`
}
