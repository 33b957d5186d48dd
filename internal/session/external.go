package session

import (
	"encoding/json"
	"time"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/events"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// FoldExternalSync is the Session Manager's half of spec.md 4.6's timeline
// integration step: the external-change tracker has already detected a
// foreign modification and built the new document snapshot plus change
// summary; this appends it as one ExternalSync WAL entry, forces a
// checkpoint at that position (spec.md 4.4), replaces the live tree with
// the newly-decoded snapshot, and marks the session as carrying an
// unacknowledged external change, which apply_patch refuses until cleared.
//
// Like ApplyPatch, a pending redo range is discarded first (the normal
// new-branch-after-undo rule applies equally to synthetic entries).
func (m *Manager) FoldExternalSync(id string, payload wal.ExternalSyncPayload) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	tree, err := m.codec.Decode(payload.DocumentSnapshot)
	if err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "decode external-sync snapshot", err)
	}

	if err := m.branchIfBehind(sess); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return docxerr.Wrap(docxerr.StorageFailure, "marshal external-sync payload", err)
	}
	entry := wal.Entry{
		Type:        wal.EntryExternalSync,
		Timestamp:   time.Now().UTC(),
		Description: "external change detected in " + payload.SourcePath,
		Payload:     raw,
	}
	if err := m.store.AppendEntry(id, entry); err != nil {
		return err
	}
	sess.Cursor++
	sess.Tree = tree
	sess.LastModifiedAt = time.Now().UTC()
	sess.lastSyncHash = payload.NewHash
	sess.ExternalChangePending = true

	// spec.md 4.4: "External-sync entries always force a checkpoint at
	// their position (the snapshot is embedded in the WAL entry payload
	// and also persisted as the checkpoint file)."
	if err := m.store.WriteCheckpoint(id, sess.Cursor, payload.DocumentSnapshot); err != nil {
		return err
	}
	sess.CheckpointPositions = append(sess.CheckpointPositions, sess.Cursor)

	if err := m.persistIndex(sess); err != nil {
		return err
	}
	m.bus.Emit(events.Context{Event: "external.sync", SessionID: id, Payload: map[string]any{
		"added":    payload.Summary.Added,
		"removed":  payload.Summary.Removed,
		"modified": payload.Summary.Modified,
		"moved":    payload.Summary.Moved,
	}})
	return nil
}

// AcknowledgeExternalChange clears the pending-external-change flag so
// apply_patch accepts further patches again. Callers are expected to have
// surfaced the change (it shows in get_history as an ExternalSync entry)
// before calling this.
func (m *Manager) AcknowledgeExternalChange(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.ExternalChangePending = false
	return nil
}

// LastSyncHash returns the content hash the session last observed for its
// source file, used by the external tracker to detect drift without
// reaching into the Session struct directly.
func (m *Manager) LastSyncHash(id string) (string, error) {
	sess, err := m.Get(id)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastSyncHash, nil
}

// SourcePathOf returns the session's current source path, or "" for an
// unsaved document (the tracker skips those).
func (m *Manager) SourcePathOf(id string) (string, error) {
	sess, err := m.Get(id)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.SourcePath, nil
}

// SyncSnapshot is the point-in-time view of a session the external-change
// tracker diffs a re-read source file against. It is read under the
// session's lock but returned unlocked, so the tree pointer must be
// treated as read-only by the caller; FoldExternalSync re-validates and
// re-locks before mutating anything.
type SyncSnapshot struct {
	Tree         *doctree.Tree
	LastSyncHash string
}

// PeekForSync returns the tree and last-known hash the tracker should
// diff a freshly-read source file against. Separate from FoldExternalSync
// because sync.Mutex is not reentrant: the tracker reads this snapshot,
// does its (potentially slow) diff work unlocked, and only re-acquires
// the session lock inside FoldExternalSync once it has a payload ready.
func (m *Manager) PeekForSync(id string) (SyncSnapshot, error) {
	sess, err := m.Get(id)
	if err != nil {
		return SyncSnapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return SyncSnapshot{Tree: sess.Tree, LastSyncHash: sess.lastSyncHash}, nil
}

// Codec exposes the manager's document codec so the external tracker can
// decode a freshly-read source file without importing a second codec
// instance of its own.
func (m *Manager) Codec() Codec { return m.codec }
