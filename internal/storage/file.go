// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/gemchat/internal/util"
)

// IndexFileName holds the session order and the active pointer.
const IndexFileName = "index.json"

// DefaultMaxSessions bounds the number of stored sessions.
const DefaultMaxSessions = 200

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per session plus an index file.
//
// Layout:
//
//	<dir>/index.json   {"order":[...], "active":"..."}
//	<dir>/<id>.json    Session
type FileStore struct {
	// BaseDir is the directory holding the session files.
	BaseDir string

	// MaxSessions limits stored sessions (0 = unlimited). The oldest
	// entries in list order are removed first.
	MaxSessions int

	mu sync.Mutex
}

// fileIndex is the on-disk shape of index.json.
type fileIndex struct {
	Order  []Meta `json:"order"`
	Active string `json:"active,omitempty"`
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return &FileStore{
		BaseDir:     dir,
		MaxSessions: DefaultMaxSessions,
	}, nil
}

// =============================================================================
// STORE OPERATIONS
// =============================================================================

// Save implements Store.
func (s *FileStore) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	var existing *Session
	pos := idx.position(sessIDOrEmpty(sess))
	if pos >= 0 {
		existing, err = s.readSession(sess.ID)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}

	if err := prepare(sess, existing); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.sessionPath(sess.ID), data, 0600); err != nil {
		return &StoreError{Op: "save", ID: sess.ID, Err: err}
	}

	if pos >= 0 {
		idx.Order[pos] = sess.Meta()
	} else {
		idx.Order = append([]Meta{sess.Meta()}, idx.Order...)
		idx.Active = sess.ID
	}

	var evicted []string
	if s.MaxSessions > 0 && len(idx.Order) > s.MaxSessions {
		for _, m := range idx.Order[s.MaxSessions:] {
			evicted = append(evicted, m.ID)
			if idx.Active == m.ID {
				idx.Active = ""
			}
		}
		idx.Order = idx.Order[:s.MaxSessions]
	}

	if err := s.writeIndex(idx); err != nil {
		return err
	}
	for _, id := range evicted {
		os.Remove(s.sessionPath(id))
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSession(id)
}

// Delete implements Store.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	pos := idx.position(id)
	removeErr := os.Remove(s.sessionPath(id))
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return &StoreError{Op: "delete", ID: id, Err: removeErr}
	}
	if pos < 0 && os.IsNotExist(removeErr) {
		return ErrSessionNotFound
	}

	if pos >= 0 {
		idx.Order = append(idx.Order[:pos], idx.Order[pos+1:]...)
	}
	if idx.Active == id {
		idx.Active = ""
	}
	return s.writeIndex(idx)
}

// List implements Store.
func (s *FileStore) List() ([]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]Meta, len(idx.Order))
	copy(out, idx.Order)
	return out, nil
}

// Active implements Store.
func (s *FileStore) Active() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	return idx.Active, nil
}

// SetActive implements Store.
func (s *FileStore) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	if id != "" && idx.position(id) < 0 {
		return ErrSessionNotFound
	}
	idx.Active = id
	return s.writeIndex(idx)
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// INDEX
// =============================================================================

func (idx *fileIndex) position(id string) int {
	if id == "" {
		return -1
	}
	for i, m := range idx.Order {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// loadIndex reads index.json, rebuilding it from the session files when it
// is missing or unreadable.
func (s *FileStore) loadIndex() (*fileIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err == nil {
		var idx fileIndex
		if jsonErr := json.Unmarshal(data, &idx); jsonErr == nil {
			return &idx, nil
		}
	} else if !os.IsNotExist(err) {
		return nil, &StoreError{Op: "read index", Err: err}
	}
	return s.rebuildIndex()
}

// rebuildIndex scans the directory and orders sessions newest first.
func (s *FileStore) rebuildIndex() (*fileIndex, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileIndex{}, nil
		}
		return nil, &StoreError{Op: "scan", Err: err}
	}

	idx := &fileIndex{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == IndexFileName || strings.HasPrefix(name, ".") ||
			!strings.HasSuffix(name, ".json") {
			continue
		}
		sess, err := s.readSession(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue // Skip corrupted files
		}
		idx.Order = append(idx.Order, sess.Meta())
	}
	sort.SliceStable(idx.Order, func(i, j int) bool {
		return idx.Order[i].CreatedAt.After(idx.Order[j].CreatedAt)
	})
	return idx, nil
}

func (s *FileStore) writeIndex(idx *fileIndex) error {
	if idx.Order == nil {
		idx.Order = []Meta{}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return &StoreError{Op: "write index", Err: err}
	}
	if err := util.AtomicWriteFile(s.indexPath(), data, 0600); err != nil {
		return &StoreError{Op: "write index", Err: err}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *FileStore) readSession(id string) (*Session, error) {
	if safeID(id) != nil || id == "" {
		return nil, ErrSessionNotFound
	}
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, &StoreError{Op: "read", ID: id, Err: err}
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &StoreError{Op: "decode", ID: id, Err: err}
	}
	return &sess, nil
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.BaseDir, IndexFileName)
}

func sessIDOrEmpty(sess *Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}
