package session

import (
	"context"
	"sync"
)

type memoryRecord struct {
	loaded map[string]int64
	window []string
}

// MemoryStore is the default in-process session store. State lives for the
// duration of the process.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]*memoryRecord
	windowSize int
}

// NewMemoryStore creates an in-memory session store. A non-positive
// windowSize falls back to DefaultWindowSize.
func NewMemoryStore(windowSize int) *MemoryStore {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &MemoryStore{
		records:    make(map[string]*memoryRecord),
		windowSize: windowSize,
	}
}

func (m *MemoryStore) record(sessionID string) *memoryRecord {
	rec, ok := m.records[sessionID]
	if !ok {
		rec = &memoryRecord{loaded: make(map[string]int64)}
		m.records[sessionID] = rec
	}
	return rec
}

// Get returns a copy of the session state.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(sessionID)
	loaded := make(map[string]int64, len(rec.loaded))
	for docID, rev := range rec.loaded {
		loaded[docID] = rev
	}
	window := append([]string(nil), rec.window...)
	return NewState(sessionID, loaded, window), nil
}

// MarkLoaded records a delivered document.
func (m *MemoryStore) MarkLoaded(_ context.Context, sessionID, docID string, revision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(sessionID).loaded[docID] = revision
	return nil
}

// IsLoaded reports whether the document is loaded at the current revision.
func (m *MemoryStore) IsLoaded(_ context.Context, sessionID, docID string, currentRevision int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev, ok := m.record(sessionID).loaded[docID]
	return ok && rev == currentRevision, nil
}

// RecordQuery appends to the rolling window, trimming the oldest entries.
func (m *MemoryStore) RecordQuery(_ context.Context, sessionID, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(sessionID)
	rec.window = append(rec.window, query)
	if len(rec.window) > m.windowSize {
		rec.window = rec.window[len(rec.window)-m.windowSize:]
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
