package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_documents (
    session_id TEXT NOT NULL,
    doc_id     TEXT NOT NULL,
    revision   INTEGER NOT NULL,
    loaded_at  DATETIME NOT NULL,
    PRIMARY KEY (session_id, doc_id)
);

CREATE TABLE IF NOT EXISTS session_queries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    query      TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_queries_session
    ON session_queries(session_id, id);
`

// SQLiteStore persists session state in a local SQLite database so an
// interaction's loaded-set survives process restarts between queries.
type SQLiteStore struct {
	db         *sqlx.DB
	windowSize int
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string, windowSize int) (*SQLiteStore, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &SQLiteStore{db: db, windowSize: windowSize}, nil
}

// Get returns the session state, empty if the session is new.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*State, error) {
	rows := []struct {
		DocID    string `db:"doc_id"`
		Revision int64  `db:"revision"`
	}{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT doc_id, revision FROM session_documents WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query session documents")
	}

	loaded := make(map[string]int64, len(rows))
	for _, row := range rows {
		loaded[row.DocID] = row.Revision
	}

	var queries []string
	err = s.db.SelectContext(ctx, &queries,
		`SELECT query FROM (
		    SELECT id, query FROM session_queries
		    WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, s.windowSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query session window")
	}

	return NewState(sessionID, loaded, queries), nil
}

// MarkLoaded upserts the delivered document record.
func (s *SQLiteStore) MarkLoaded(ctx context.Context, sessionID, docID string, revision int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_documents (session_id, doc_id, revision, loaded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, doc_id) DO UPDATE SET revision = excluded.revision, loaded_at = excluded.loaded_at`,
		sessionID, docID, revision, time.Now().UTC())
	return errors.Wrap(err, "failed to mark document loaded")
}

// IsLoaded reports whether the document is loaded at the current revision.
func (s *SQLiteStore) IsLoaded(ctx context.Context, sessionID, docID string, currentRevision int64) (bool, error) {
	var revision int64
	err := s.db.GetContext(ctx, &revision,
		"SELECT revision FROM session_documents WHERE session_id = ? AND doc_id = ?",
		sessionID, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to query document record")
	}
	return revision == currentRevision, nil
}

// RecordQuery appends to the rolling window and trims entries beyond it.
func (s *SQLiteStore) RecordQuery(ctx context.Context, sessionID, query string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_queries (session_id, query, created_at) VALUES (?, ?, ?)",
		sessionID, query, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to record query")
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM session_queries
		 WHERE session_id = ? AND id NOT IN (
		     SELECT id FROM session_queries
		     WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 )`, sessionID, sessionID, s.windowSize)
	return errors.Wrap(err, "failed to trim query window")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
