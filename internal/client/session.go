package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Session is the credential pair a client holds between requests.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// IsZero reports whether s holds no credentials.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// SessionStore persists the client's session. Get returns the zero Session
// when nothing is stored.
type SessionStore interface {
	Get(ctx context.Context) (Session, error)
	Set(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu sync.RWMutex
	s  Session
}

// NewMemorySessionStore returns a store holding s.
func NewMemorySessionStore(s Session) *MemorySessionStore {
	return &MemorySessionStore{s: s}
}

func (m *MemorySessionStore) Get(context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *MemorySessionStore) Set(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemorySessionStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = Session{}
	return nil
}

// SQLiteSessionStore keeps the session in a local SQLite file so it
// survives restarts of the client process. It holds at most one row.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore creates the session table if needed.
func NewSQLiteSessionStore(ctx context.Context, db *sql.DB) (*SQLiteSessionStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS client_session (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	) STRICT`)
	if err != nil {
		return nil, fmt.Errorf("creating session table: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

func (s *SQLiteSessionStore) Get(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token FROM client_session WHERE id = 1",
	).Scan(&sess.AccessToken, &sess.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteSessionStore) Set(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_session (id, access_token, refresh_token) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		sess.AccessToken, sess.RefreshToken)
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_session"); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
