// Package session tracks per-interaction load state: which documents have
// already been delivered (and at which skill revision) and a rolling window
// of recent queries used for reference trigger matching. Sessions are never
// shared: one session never observes another's loaded-set.
package session

import (
	"context"

	"github.com/google/uuid"
)

// DefaultWindowSize is the number of recent queries retained per session.
const DefaultWindowSize = 5

// Store persists load session state. Implementations must be safe for
// concurrent use across sessions; the router serializes access per session.
type Store interface {
	// Get returns the state for a session, creating an empty one if absent.
	Get(ctx context.Context, sessionID string) (*State, error)
	// MarkLoaded records a delivered document at the given skill revision.
	MarkLoaded(ctx context.Context, sessionID, docID string, revision int64) error
	// IsLoaded reports whether the document was delivered at the current
	// revision. A record at a stale revision returns false.
	IsLoaded(ctx context.Context, sessionID, docID string, currentRevision int64) (bool, error)
	// RecordQuery appends a query to the session's rolling window.
	RecordQuery(ctx context.Context, sessionID, query string) error
	// Close releases any resources held by the store.
	Close() error
}

// State is a read-only view of one session, captured at the start of a
// query. Planners consult it; only the store mutates the underlying record.
type State struct {
	ID     string
	loaded map[string]int64
	window []string
}

// NewState builds a state view, used by store implementations and tests.
func NewState(id string, loaded map[string]int64, window []string) *State {
	if loaded == nil {
		loaded = map[string]int64{}
	}
	return &State{ID: id, loaded: loaded, window: window}
}

// LoadedRevision returns the revision a document was delivered at, if any.
func (s *State) LoadedRevision(docID string) (int64, bool) {
	rev, ok := s.loaded[docID]
	return rev, ok
}

// QueryWindow returns the rolling window of recent queries, oldest first.
func (s *State) QueryWindow() []string {
	return s.window
}

// WithQuery returns a copy of the state whose window ends with the given
// query. The stored record is untouched: the current query only becomes a
// "prior query" once its plan is committed.
func (s *State) WithQuery(query string) *State {
	window := make([]string, 0, len(s.window)+1)
	window = append(window, s.window...)
	window = append(window, query)
	return &State{ID: s.ID, loaded: s.loaded, window: window}
}

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
