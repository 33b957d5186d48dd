package wal

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAppendAndReadEntriesRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal([]map[string]any{{"op": "add"}})
		err := s.AppendEntry("abc123", Entry{
			Type:        EntryPatch,
			Timestamp:   time.Now().UTC(),
			Description: "add paragraph",
			Payload:     payload,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := s.ReadEntries("abc123")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestTruncateWAL(t *testing.T) {
	s, _ := Open(t.TempDir())
	for i := 0; i < 5; i++ {
		s.AppendEntry("sid", Entry{Type: EntryPatch, Timestamp: time.Now().UTC(), Payload: json.RawMessage("[]")})
	}
	if err := s.TruncateWAL("sid", 2); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	entries, _ := s.ReadEntries("sid")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after truncate, got %d", len(entries))
	}
}

func TestNearestCheckpointFallsBackToBaseline(t *testing.T) {
	s, _ := Open(t.TempDir())
	if err := s.WriteBaseline("sid", []byte("baseline")); err != nil {
		t.Fatalf("write baseline: %v", err)
	}
	if err := s.WriteCheckpoint("sid", 10, []byte("ckpt10")); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}
	if err := s.WriteCheckpoint("sid", 20, []byte("ckpt20")); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}

	pos, data, err := s.NearestCheckpoint("sid", 15, []int{10, 20})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if pos != 10 || string(data) != "ckpt10" {
		t.Fatalf("expected checkpoint 10, got pos=%d data=%q", pos, data)
	}

	pos, data, err = s.NearestCheckpoint("sid", 5, []int{10, 20})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if pos != 0 || string(data) != "baseline" {
		t.Fatalf("expected baseline fallback, got pos=%d data=%q", pos, data)
	}
}

func TestDeleteCheckpointsAfter(t *testing.T) {
	s, _ := Open(t.TempDir())
	s.WriteCheckpoint("sid", 10, []byte("a"))
	s.WriteCheckpoint("sid", 20, []byte("b"))
	s.WriteCheckpoint("sid", 30, []byte("c"))

	kept := s.DeleteCheckpointsAfter("sid", 20, []int{10, 20, 30})
	if len(kept) != 2 || kept[0] != 10 || kept[1] != 20 {
		t.Fatalf("expected [10 20] kept, got %v", kept)
	}
	if _, err := s.ReadCheckpoint("sid", 30); err == nil {
		t.Fatal("expected checkpoint 30 to be deleted")
	}
}

func TestIndexWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)
	err := s.MutateIndex(func(idx *Index) error {
		idx.Upsert(IndexEntry{ID: "sid1", DocxFile: "sid1.docx", CreatedAt: time.Now().UTC()})
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, got %v", matches)
	}

	idx, err := s.ReadIndex()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if idx.Find("sid1") == nil {
		t.Fatal("expected sid1 in index")
	}
}

func TestMutateIndexSerializesConcurrentWriters(t *testing.T) {
	s, _ := Open(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.MutateIndex(func(idx *Index) error {
				idx.Upsert(IndexEntry{ID: "concurrent", WALCount: n})
				return nil
			})
		}(i)
	}
	wg.Wait()

	idx, err := s.ReadIndex()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(idx.Sessions) != 1 {
		t.Fatalf("expected exactly 1 session entry, got %d", len(idx.Sessions))
	}
}
