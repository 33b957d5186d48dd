package external

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/doxsess/docx-session-engine/internal/session"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// Manager is the subset of *session.Manager the tracker needs, narrowed to
// an interface so tests can fake it without spinning up a real WAL store.
type Manager interface {
	ListSessions() []string
	SourcePathOf(id string) (string, error)
	PeekForSync(id string) (session.SyncSnapshot, error)
	FoldExternalSync(id string, payload wal.ExternalSyncPayload) error
	Codec() session.Codec
}

// Tracker watches every session's source file for foreign writes and folds
// a diff into the session's timeline when one lands, generalizing the
// teacher's Engine.WatchFile hot-reload watcher (internal/core/db.go) from
// a single callback-on-write to a per-session fsnotify.Watcher plus the
// content-hash/diff pipeline spec.md 4.6 describes.
type Tracker struct {
	mgr Manager
	log *slog.Logger

	mu      sync.Mutex
	watched map[string]string // sessionID -> watched path, so a rename doesn't leak a stale watch

	watcher *fsnotify.Watcher
}

// New builds a Tracker over mgr. Call Start to begin watching.
func New(mgr Manager, log *slog.Logger) (*Tracker, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{mgr: mgr, log: log, watched: make(map[string]string), watcher: w}, nil
}

// Start launches the watch loop in a goroutine and returns immediately. It
// also registers every session that currently has a saved source path, so
// edits made while the tracker was not yet running are covered from the
// session's next poll onward.
func (t *Tracker) Start(ctx context.Context) error {
	for _, id := range t.mgr.ListSessions() {
		if err := t.Watch(id); err != nil {
			t.log.Warn("external tracker: failed to watch session", "session", id, "err", err)
		}
	}

	go func() {
		defer t.watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-t.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					t.handleWrite(event.Name)
				}
			case err, ok := <-t.watcher.Errors:
				if !ok {
					return
				}
				t.log.Warn("external tracker: watcher error", "err", err)
			}
		}
	}()
	return nil
}

// Watch registers id's current source path with the underlying
// fsnotify.Watcher, replacing any previous path watched for id.
func (t *Tracker) Watch(id string) error {
	path, err := t.mgr.SourcePathOf(id)
	if err != nil {
		return err
	}
	if path == "" {
		return nil // unsaved document, nothing on disk to watch yet
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.watched[id]; ok && old != path {
		_ = t.watcher.Remove(old)
	}
	if err := t.watcher.Add(path); err != nil {
		return err
	}
	t.watched[id] = path
	return nil
}

// sessionForPath finds which watched session owns path, since fsnotify
// events carry only a path, not a session ID.
func (t *Tracker) sessionForPath(path string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.watched {
		if p == path {
			return id, true
		}
	}
	return "", false
}

func (t *Tracker) handleWrite(path string) {
	id, ok := t.sessionForPath(path)
	if !ok {
		return
	}
	if err := t.Sync(id); err != nil {
		t.log.Warn("external tracker: sync failed", "session", id, "path", path, "err", err)
	}
}

// Sync re-reads id's source file, and if its content hash differs from
// what the session last observed, decodes it, diffs it against the live
// tree, and folds the result into the session's timeline. A no-op if the
// file is unchanged (covers the session's own auto-save writes, which
// update lastSyncHash before this ever runs).
func (t *Tracker) Sync(id string) error {
	snapshot, err := t.mgr.PeekForSync(id)
	if err != nil {
		return err
	}
	path, err := t.mgr.SourcePathOf(id)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	newHash := hashBytes(raw)
	if newHash == snapshot.LastSyncHash {
		return nil
	}

	newTree, err := t.mgr.Codec().Decode(raw)
	if err != nil {
		return err
	}

	summary, _ := Diff(snapshot.Tree, newTree)

	var uncovered []wal.UncoveredPart
	if oldRaw, err := t.mgr.Codec().Encode(snapshot.Tree); err == nil {
		uncovered = uncoveredParts(oldRaw, raw)
	}

	payload := wal.ExternalSyncPayload{
		SourcePath:       path,
		OldHash:          snapshot.LastSyncHash,
		NewHash:          newHash,
		DocumentSnapshot: raw,
		UncoveredChanges: uncovered,
		Summary: wal.ChangeSummary{
			Added:    summary.Added,
			Removed:  summary.Removed,
			Modified: summary.Modified,
			Moved:    summary.Moved,
		},
	}
	return t.mgr.FoldExternalSync(id, payload)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// uncoveredParts compares every non-document.xml zip part between the
// session's last-known-good encoding and the freshly-read file, per
// spec.md 4.6's "uncovered-parts detection for non-body OOXML parts" — the
// body diff above only ever looks at word/document.xml.
func uncoveredParts(oldZip, newZip []byte) []wal.UncoveredPart {
	oldParts := partHashes(oldZip)
	newParts := partHashes(newZip)

	var out []wal.UncoveredPart
	for name, oldHash := range oldParts {
		if name == documentPartName {
			continue
		}
		if newHash, ok := newParts[name]; !ok {
			out = append(out, wal.UncoveredPart{Part: name, Change: "removed"})
		} else if newHash != oldHash {
			out = append(out, wal.UncoveredPart{Part: name, Change: "modified"})
		}
	}
	for name := range newParts {
		if name == documentPartName {
			continue
		}
		if _, ok := oldParts[name]; !ok {
			out = append(out, wal.UncoveredPart{Part: name, Change: "added"})
		}
	}
	return out
}

const documentPartName = "word/document.xml"

func partHashes(data []byte) map[string]string {
	out := make(map[string]string)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return out
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		out[f.Name] = hashBytes(raw)
	}
	return out
}
