package wal

import "time"

// IndexEntry mirrors spec.md 6's index.json session record.
type IndexEntry struct {
	ID                   string    `json:"id"`
	SourcePath           string    `json:"sourcePath,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	LastModifiedAt       time.Time `json:"lastModifiedAt"`
	DocxFile             string    `json:"docxFile"`
	WALCount             int       `json:"walCount"`
	CursorPosition       int       `json:"cursorPosition"`
	CheckpointPositions  []int     `json:"checkpointPositions"`
}

// Index is the single on-disk mapping from session ID to its bookkeeping
// record.
type Index struct {
	Sessions []IndexEntry `json:"sessions"`
}

// Find returns a pointer into idx.Sessions for sid, or nil.
func (idx *Index) Find(sid string) *IndexEntry {
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == sid {
			return &idx.Sessions[i]
		}
	}
	return nil
}

// Upsert inserts or replaces the entry for entry.ID.
func (idx *Index) Upsert(entry IndexEntry) {
	if existing := idx.Find(entry.ID); existing != nil {
		*existing = entry
		return
	}
	idx.Sessions = append(idx.Sessions, entry)
}

// Remove deletes the entry for sid, if present.
func (idx *Index) Remove(sid string) {
	out := idx.Sessions[:0]
	for _, e := range idx.Sessions {
		if e.ID != sid {
			out = append(out, e)
		}
	}
	idx.Sessions = out
}
