package collab

import (
	"encoding/json"
	"sync"
)

// CursorTable keeps the last reported cursor position per (document, user).
// It is purely ephemeral in-process state: never written to the shared store
// and lost on restart.
type CursorTable struct {
	mu   sync.RWMutex
	docs map[int64]map[int64]json.RawMessage
}

func NewCursorTable() *CursorTable {
	return &CursorTable{docs: make(map[int64]map[int64]json.RawMessage)}
}

func (t *CursorTable) Set(docID, userID int64, position json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cursors, ok := t.docs[docID]
	if !ok {
		cursors = make(map[int64]json.RawMessage)
		t.docs[docID] = cursors
	}
	cursors[userID] = position
}

func (t *CursorTable) Remove(docID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cursors, ok := t.docs[docID]; ok {
		delete(cursors, userID)
		if len(cursors) == 0 {
			delete(t.docs, docID)
		}
	}
}

// Drop discards every cursor for the document. Called during full teardown.
func (t *CursorTable) Drop(docID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, docID)
}

func (t *CursorTable) Snapshot(docID int64) map[int64]json.RawMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cursors := t.docs[docID]
	out := make(map[int64]json.RawMessage, len(cursors))
	for userID, position := range cursors {
		out[userID] = position
	}
	return out
}
