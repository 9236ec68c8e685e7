// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// sqliteSchema creates the session tables. position orders the list:
// new sessions take min(position)-1 so they sort first.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	turn_count INTEGER NOT NULL DEFAULT 0,
	preview    TEXT NOT NULL DEFAULT '',
	turns      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_position ON sessions(position);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const activeKey = "active_session"

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps sessions in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string

	// MaxSessions limits stored sessions (0 = unlimited).
	MaxSessions int

	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to set pragma %q: %w", pragma, err)}
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to create schema: %w", err)}
	}

	// Best effort: the database holds conversation content.
	os.Chmod(path, 0600)

	return &SQLiteStore{db: db, path: path, MaxSessions: DefaultMaxSessions}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save implements Store.
func (s *SQLiteStore) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return prepare(nil, nil)
	}

	var existing *Session
	if sess.ID != "" {
		var created, updated int64
		err := s.db.QueryRow(`SELECT created_at, updated_at FROM sessions WHERE id = ?`, sess.ID).
			Scan(&created, &updated)
		switch {
		case err == nil:
			existing = &Session{CreatedAt: fromMillis(created), UpdatedAt: fromMillis(updated)}
		case !errors.Is(err, sql.ErrNoRows):
			return &StoreError{Op: "save", ID: sess.ID, Err: err}
		}
	}

	if err := prepare(sess, existing); err != nil {
		return err
	}

	turns, err := json.Marshal(sess.Turns)
	if err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}
	meta := sess.Meta()

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}
	defer tx.Rollback()

	if existing != nil {
		_, err = tx.Exec(`UPDATE sessions
			SET title = ?, model = ?, updated_at = ?, turn_count = ?, preview = ?, turns = ?
			WHERE id = ?`,
			sess.Title, sess.Model, toMillis(sess.UpdatedAt), meta.TurnCount, meta.Preview, string(turns), sess.ID)
	} else {
		_, err = tx.Exec(`INSERT INTO sessions
			(id, title, model, created_at, updated_at, position, turn_count, preview, turns)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MIN(position), 0) - 1 FROM sessions), ?, ?, ?)`,
			sess.ID, sess.Title, sess.Model, toMillis(sess.CreatedAt), toMillis(sess.UpdatedAt),
			meta.TurnCount, meta.Preview, string(turns))
		if err == nil {
			err = setMeta(tx, activeKey, sess.ID)
		}
	}
	if err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}

	if s.MaxSessions > 0 {
		if err := s.enforceLimit(tx); err != nil {
			return &StoreError{Op: "save", ID: sess.ID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}
	return nil
}

// enforceLimit removes sessions beyond MaxSessions in list order.
func (s *SQLiteStore) enforceLimit(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM meta WHERE key = ? AND value IN (
			SELECT id FROM sessions ORDER BY position ASC LIMIT -1 OFFSET ?)`,
		activeKey, s.MaxSessions); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions ORDER BY position ASC LIMIT -1 OFFSET ?)`,
		s.MaxSessions)
	return err
}

// Get implements Store.
func (s *SQLiteStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sess             Session
		created, updated int64
		turns            string
	)
	err := s.db.QueryRow(`SELECT id, title, model, created_at, updated_at, turns
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Title, &sess.Model, &created, &updated, &turns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", ID: id, Err: err}
	}
	if err := json.Unmarshal([]byte(turns), &sess.Turns); err != nil {
		return nil, &StoreError{Op: "decode", ID: id, Err: err}
	}
	sess.CreatedAt = fromMillis(created)
	sess.UpdatedAt = fromMillis(updated)
	return &sess, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	if _, err := tx.Exec(`DELETE FROM meta WHERE key = ? AND value = ?`, activeKey, id); err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List() ([]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, title, model, created_at, updated_at, turn_count, preview
		FROM sessions ORDER BY position ASC`)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var (
			m                Meta
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &created, &updated, &m.TurnCount, &m.Preview); err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		m.CreatedAt = fromMillis(created)
		m.UpdatedAt = fromMillis(updated)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return metas, nil
}

// Active implements Store.
func (s *SQLiteStore) Active() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, activeKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &StoreError{Op: "active", Err: err}
	}
	return id, nil
}

// SetActive implements Store.
func (s *SQLiteStore) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		if _, err := s.db.Exec(`DELETE FROM meta WHERE key = ?`, activeKey); err != nil {
			return &StoreError{Op: "set active", Err: err}
		}
		return nil
	}

	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return &StoreError{Op: "set active", ID: id, Err: err}
	}
	if err := setMeta(s.db, activeKey, id); err != nil {
		return &StoreError{Op: "set active", ID: id, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func setMeta(db execer, key, value string) error {
	_, err := db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
