package session

import (
	"encoding/json"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/patch"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// rebuildAt reconstructs sess.Tree at WAL position target: load the
// nearest checkpoint at or below target (or the baseline), then replay
// forward entry by entry, handling both ordinary patch entries and the
// embedded full-document snapshots carried by ExternalSync/Import
// entries.
func (m *Manager) rebuildAt(sess *Session, target int) error {
	startPos, data, err := m.store.NearestCheckpoint(sess.ID, target, sess.CheckpointPositions)
	if err != nil {
		return err
	}
	tree, err := m.codec.Decode(data)
	if err != nil {
		return err
	}

	entries, err := m.store.ReadEntriesRange(sess.ID, startPos, target)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Type {
		case wal.EntryPatch:
			if err := applyPatchEntry(tree, e); err != nil {
				return err
			}
		case wal.EntryExternalSync, wal.EntryImport:
			tree, err = applySnapshotEntry(m.codec, e)
			if err != nil {
				return err
			}
		default:
			return docxerr.Newf(docxerr.StorageFailure, "unknown wal entry type %q", e.Type)
		}
	}

	sess.Tree = tree
	sess.Cursor = target
	return nil
}

// applyPatchEntry replays one recorded batch of operations onto tree.
// The batch was already validated and applied successfully the first
// time, so a failure here indicates corruption rather than a normal
// rejection; it is surfaced as a storage failure rather than a patch
// error.
func applyPatchEntry(tree *doctree.Tree, e wal.Entry) error {
	var ops []patch.Op
	if err := json.Unmarshal(e.Payload, &ops); err != nil {
		return docxerr.Wrap(docxerr.StorageFailure, "decode recorded patch ops", err)
	}
	resp, err := patch.Apply(tree, ops, false)
	if err != nil {
		return docxerr.Wrap(docxerr.StorageFailure, "replay recorded patch", err)
	}
	for _, r := range resp.Operations {
		if r.Status != patch.StatusSuccess {
			return docxerr.Newf(docxerr.StorageFailure, "replay of recorded op %q failed: %s", r.Op, r.Error)
		}
	}
	return nil
}

// applySnapshotEntry decodes the full-document snapshot carried by an
// ExternalSync or Import entry, which replaces the tree outright rather
// than patching it incrementally.
func applySnapshotEntry(codec Codec, e wal.Entry) (*doctree.Tree, error) {
	var payload wal.ExternalSyncPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, docxerr.Wrap(docxerr.StorageFailure, "decode external-sync payload", err)
	}
	tree, err := codec.Decode(payload.DocumentSnapshot)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "decode external-sync snapshot", err)
	}
	return tree, nil
}
