package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/events"
	"github.com/doxsess/docx-session-engine/internal/patch"
	"github.com/doxsess/docx-session-engine/internal/wal"
)

// Manager is the single-process in-memory registry of live sessions
// (spec.md 4.5). It is the exclusive owner of every *Session; transports
// hold only session IDs.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store    *wal.Store
	codec    Codec
	bus      *events.Bus
	autoSave bool
	log      *slog.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithAutoSave overrides the DOCX_AUTO_SAVE default.
func WithAutoSave(enabled bool) Option {
	return func(m *Manager) { m.autoSave = enabled }
}

// WithLogger overrides the package-level default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager wires a WAL store, document codec, and event bus into a
// session registry.
func NewManager(store *wal.Store, codec Codec, bus *events.Bus, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		codec:    codec,
		bus:      bus,
		autoSave: autoSaveDefault(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func autoSaveDefault() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DOCX_AUTO_SAVE")))
	return v != "false" && v != "0"
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

// Create opens a brand-new, unsaved document session.
func (m *Manager) Create() (*Session, error) {
	tree := doctree.New()
	return m.createWithTree(tree, "")
}

func (m *Manager) createWithTree(tree *doctree.Tree, sourcePath string) (*Session, error) {
	data, err := m.codec.Encode(tree)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "encode baseline", err)
	}
	sid := newSessionID()
	if err := m.store.WriteBaseline(sid, data); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:             sid,
		SourcePath:     sourcePath,
		Tree:           tree,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if sourcePath != "" {
		sess.lastSyncHash = contentHash(data)
	}
	err = m.store.MutateIndex(func(idx *wal.Index) error {
		idx.Upsert(wal.IndexEntry{
			ID:             sid,
			SourcePath:     sourcePath,
			CreatedAt:      now,
			LastModifiedAt: now,
			DocxFile:       sid + ".docx",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.register(sess)
	m.bus.Emit(events.Context{Event: "session.created", SessionID: sid})
	return sess, nil
}

// Open loads path as a brand-new session.
func (m *Manager) Open(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.SourceMissing, "open source document", err)
	}
	tree, err := m.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	sess, err := m.createWithTree(tree, path)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.lastSyncHash = contentHash(data)
	sess.mu.Unlock()
	return sess, nil
}

// Get looks up a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, docxerr.Newf(docxerr.SessionNotFound, "no live session %q", id)
	}
	return s, nil
}

// Resolve accepts either a live session ID, the source path of a live
// session, or the path to a document with no live session (auto-opened).
func (m *Manager) Resolve(idOrPath string) (*Session, error) {
	if s, err := m.Get(idOrPath); err == nil {
		return s, nil
	}
	m.mu.RLock()
	for _, s := range m.sessions {
		if s.SourcePath == idOrPath {
			m.mu.RUnlock()
			return s, nil
		}
	}
	m.mu.RUnlock()
	if _, err := os.Stat(idOrPath); err == nil {
		return m.Open(idOrPath)
	}
	return nil, docxerr.Newf(docxerr.SessionNotFound, "no session or document at %q", idOrPath)
}

// ListSessions returns the IDs of every live session.
func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Save re-encodes the session's tree and writes it to path (or its
// existing SourcePath when path is empty).
func (m *Manager) Save(id, path string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	target := path
	if target == "" {
		target = sess.SourcePath
	}
	if target == "" {
		return docxerr.New(docxerr.PatchSemantic, "session has no source path to save to")
	}
	data, err := m.codec.Encode(sess.Tree)
	if err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "encode document", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return docxerr.Wrap(docxerr.StorageFailure, "write document", err)
	}
	sess.SourcePath = target
	sess.lastSyncHash = contentHash(data)
	return nil
}

// Close deletes every persisted trace of a session. Administrative only —
// never reachable from the normal patch/undo/redo RPC surface.
func (m *Manager) Close(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	if err := m.store.MutateIndex(func(idx *wal.Index) error {
		idx.Remove(id)
		return nil
	}); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// ApplyPatch executes ops against session id, appending a single WAL
// entry covering the subset of operations that succeeded.
func (m *Manager) ApplyPatch(id string, ops []patch.Op, dryRun bool) (*patch.Response, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !dryRun && sess.ExternalChangePending {
		return nil, docxerr.New(docxerr.ExternalChangePending, "acknowledge the pending external change before applying further patches")
	}

	resp, err := patch.Apply(sess.Tree, ops, dryRun)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return resp, nil
	}

	successful := make([]patch.Op, 0, len(ops))
	for i, r := range resp.Operations {
		if r.Status == patch.StatusSuccess {
			successful = append(successful, ops[i])
		}
	}
	if len(successful) == 0 {
		return resp, nil
	}

	if err := m.branchIfBehind(sess); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(successful)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.StorageFailure, "marshal patch payload", err)
	}
	entry := wal.Entry{
		Type:        wal.EntryPatch,
		Timestamp:   time.Now().UTC(),
		Description: describeOps(successful),
		Payload:     payload,
	}
	if err := m.store.AppendEntry(id, entry); err != nil {
		return nil, err
	}
	sess.Cursor++
	sess.LastModifiedAt = time.Now().UTC()

	if sess.Cursor%m.store.CheckpointInterval == 0 {
		if err := m.writeCheckpoint(sess); err != nil {
			m.log.Error("checkpoint write failed", "session", id, "error", err)
		}
	}

	if err := m.persistIndex(sess); err != nil {
		return nil, err
	}
	m.bus.Emit(events.Context{Event: "patch.applied", SessionID: id})

	if sess.SourcePath != "" && m.autoSave {
		if data, err := m.codec.Encode(sess.Tree); err != nil {
			m.log.Error("auto-save encode failed", "session", id, "error", err)
		} else if err := os.WriteFile(sess.SourcePath, data, 0o644); err != nil {
			m.log.Error("auto-save write failed", "session", id, "error", err)
		} else {
			sess.lastSyncHash = contentHash(data)
		}
	}

	if sess.Cursor >= m.store.CompactThreshold {
		entries, err := m.store.ReadEntries(id)
		if err == nil && sess.Cursor == len(entries) {
			if cErr := m.compactLocked(sess, false); cErr != nil {
				m.log.Warn("auto-compaction skipped", "session", id, "error", cErr)
			}
		}
	}

	return resp, nil
}

// branchIfBehind implements spec.md 4.5's new-branch-after-undo rule: a
// successful patch while cursor < WAL length discards the future.
func (m *Manager) branchIfBehind(sess *Session) error {
	entries, err := m.store.ReadEntries(sess.ID)
	if err != nil {
		return err
	}
	if sess.Cursor >= len(entries) {
		return nil
	}
	if err := m.store.TruncateWAL(sess.ID, sess.Cursor); err != nil {
		return err
	}
	sess.CheckpointPositions = m.store.DeleteCheckpointsAfter(sess.ID, sess.Cursor, sess.CheckpointPositions)
	return nil
}

func (m *Manager) writeCheckpoint(sess *Session) error {
	data, err := m.codec.Encode(sess.Tree)
	if err != nil {
		return err
	}
	if err := m.store.WriteCheckpoint(sess.ID, sess.Cursor, data); err != nil {
		return err
	}
	sess.CheckpointPositions = append(sess.CheckpointPositions, sess.Cursor)
	return nil
}

func (m *Manager) persistIndex(sess *Session) error {
	return m.store.MutateIndex(func(idx *wal.Index) error {
		idx.Upsert(wal.IndexEntry{
			ID:                  sess.ID,
			SourcePath:          sess.SourcePath,
			CreatedAt:           sess.CreatedAt,
			LastModifiedAt:      sess.LastModifiedAt,
			DocxFile:            sess.ID + ".docx",
			WALCount:            sess.Cursor,
			CursorPosition:      sess.Cursor,
			CheckpointPositions: append([]int(nil), sess.CheckpointPositions...),
		})
		return nil
	})
}

// Undo steps the session back by n patch entries (clamped to the
// beginning of the timeline) and rebuilds the tree at that position.
func (m *Manager) Undo(id string, n int) (*OpResult, error) {
	if n <= 0 {
		n = 1
	}
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	target := sess.Cursor - n
	if target < 0 {
		target = 0
	}
	steps := sess.Cursor - target
	if err := m.rebuildAt(sess, target); err != nil {
		return nil, err
	}
	m.bus.Emit(events.Context{Event: "session.undo", SessionID: id})
	return &OpResult{Position: sess.Cursor, Steps: steps, Message: fmt.Sprintf("undid %d step(s)", steps)}, nil
}

// Redo steps the session forward by n patch entries, clamped to the WAL's
// length. When no ExternalSync/Import entries lie between the current
// cursor and the target, it replays directly onto the live tree instead
// of paying for a full rebuild-from-checkpoint.
func (m *Manager) Redo(id string, n int) (*OpResult, error) {
	if n <= 0 {
		n = 1
	}
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entries, err := m.store.ReadEntries(id)
	if err != nil {
		return nil, err
	}
	target := sess.Cursor + n
	if target > len(entries) {
		target = len(entries)
	}
	steps := target - sess.Cursor
	if steps <= 0 {
		return &OpResult{Position: sess.Cursor, Steps: 0, Message: "nothing to redo"}, nil
	}

	if canFastForward(entries, sess.Cursor, target) {
		for _, e := range entries[sess.Cursor:target] {
			if err := applyPatchEntry(sess.Tree, e); err != nil {
				return nil, err
			}
		}
		sess.Cursor = target
	} else {
		if err := m.rebuildAt(sess, target); err != nil {
			return nil, err
		}
	}
	m.bus.Emit(events.Context{Event: "session.redo", SessionID: id})
	return &OpResult{Position: sess.Cursor, Steps: steps, Message: fmt.Sprintf("redid %d step(s)", steps)}, nil
}

func canFastForward(entries []wal.Entry, from, to int) bool {
	for _, e := range entries[from:to] {
		if e.Type != wal.EntryPatch {
			return false
		}
	}
	return true
}

// JumpTo rebuilds the session's tree at an absolute WAL position.
func (m *Manager) JumpTo(id string, position int) (*OpResult, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entries, err := m.store.ReadEntries(id)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		position = 0
	}
	if position > len(entries) {
		position = len(entries)
	}
	steps := position - sess.Cursor
	if err := m.rebuildAt(sess, position); err != nil {
		return nil, err
	}
	m.bus.Emit(events.Context{Event: "session.jump", SessionID: id})
	return &OpResult{Position: sess.Cursor, Steps: steps, Message: fmt.Sprintf("jumped to position %d", position)}, nil
}

// GetHistory returns a lightweight timeline of every WAL entry.
func (m *Manager) GetHistory(id string) ([]HistoryItem, error) {
	entries, err := m.store.ReadEntries(id)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{
			Position:    i + 1,
			Type:        string(e.Type),
			Timestamp:   e.Timestamp,
			Description: e.Description,
		}
	}
	return items, nil
}

// Compact rewrites a session's WAL down to a single checkpoint baseline,
// discarding history before the current cursor. It refuses when redo is
// pending (cursor short of the WAL's length) unless force is set, since
// compaction would otherwise silently destroy the redo-able future.
func (m *Manager) Compact(id string, force bool) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return m.compactLocked(sess, force)
}

func (m *Manager) compactLocked(sess *Session, force bool) error {
	entries, err := m.store.ReadEntries(sess.ID)
	if err != nil {
		return err
	}
	if !force && sess.Cursor < len(entries) {
		return docxerr.New(docxerr.PatchSemantic, "redo is pending; compaction would discard it (pass force to override)")
	}

	data, err := m.codec.Encode(sess.Tree)
	if err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "encode compaction baseline", err)
	}
	if err := m.store.WriteBaseline(sess.ID, data); err != nil {
		return err
	}
	if err := m.store.TruncateWAL(sess.ID, 0); err != nil {
		return err
	}
	sess.CheckpointPositions = m.store.DeleteCheckpointsAfter(sess.ID, -1, sess.CheckpointPositions)
	sess.Cursor = 0
	return m.persistIndex(sess)
}

// RestoreSessions reloads every session recorded in index.json at startup,
// rebuilding each one at its recorded cursor from the nearest checkpoint
// (or its baseline) plus the WAL entries after it. Runs under the index
// lock for its entire duration, per spec.md 4.5, since a crash mid-restore
// must never leave the index half-read.
func (m *Manager) RestoreSessions() error {
	return m.store.WithExclusiveLock(func() error {
		idx, err := m.store.ReadIndexNoLock()
		if err != nil {
			return err
		}
		for _, entry := range idx.Sessions {
			sess := &Session{
				ID:                  entry.ID,
				SourcePath:          entry.SourcePath,
				CreatedAt:           entry.CreatedAt,
				LastModifiedAt:      entry.LastModifiedAt,
				CheckpointPositions: append([]int(nil), entry.CheckpointPositions...),
			}
			if err := m.rebuildAt(sess, entry.CursorPosition); err != nil {
				m.log.Error("failed to restore session", "session", entry.ID, "error", err)
				continue
			}
			m.register(sess)
		}
		return nil
	})
}

func describeOps(ops []patch.Op) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.Path != "" {
			parts = append(parts, fmt.Sprintf("%s %s", op.Op, op.Path))
		} else {
			parts = append(parts, op.Op)
		}
	}
	return strings.Join(parts, ", ")
}
