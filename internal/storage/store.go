// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a persisted conversation.
type Session struct {
	ID        string       `json:"id" yaml:"id"`
	Title     string       `json:"title" yaml:"title"`
	Model     string       `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt time.Time    `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" yaml:"updated_at"`
	Turns     []model.Turn `json:"turns" yaml:"turns"`
}

// NewSession creates an empty session with a generated ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Title:     model.DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FromConversation snapshots a conversation into a session.
func FromConversation(conv *model.Conversation, modelID string) *Session {
	turns := conv.Snapshot()
	return &Session{
		ID:        conv.ID,
		Title:     model.TitleFor(turns),
		Model:     modelID,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Turns:     turns,
	}
}

// Conversation rebuilds a live conversation from the session.
func (s *Session) Conversation() *model.Conversation {
	conv := model.NewConversation()
	conv.ID = s.ID
	conv.CreatedAt = s.CreatedAt
	conv.UpdatedAt = s.UpdatedAt
	conv.Turns = make([]model.Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		t = t.Clone()
		t.Streaming = false
		conv.Turns = append(conv.Turns, t)
	}
	return conv
}

// Meta returns the listing metadata for the session.
func (s *Session) Meta() Meta {
	preview := ""
	for _, t := range s.Turns {
		if t.Role == model.RoleUser {
			preview = t.Preview(80)
			break
		}
	}
	return Meta{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		TurnCount: len(s.Turns),
		Preview:   preview,
	}
}

// Validate checks the fields a store relies on.
func (s *Session) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ID, validation.Required, validation.By(safeID)),
		validation.Field(&s.Turns, validation.Each(validation.By(validTurn))),
	)
}

func validTurn(value interface{}) error {
	t, ok := value.(model.Turn)
	if !ok {
		return errors.New("must be a turn")
	}
	if t.Role != model.RoleUser && t.Role != model.RoleModel {
		return fmt.Errorf("unknown role %q", t.Role)
	}
	return nil
}

// SECURITY: IDs become file names; reject anything that could escape the
// store directory.
func safeID(value interface{}) error {
	id, _ := value.(string)
	if strings.ContainsAny(id, `/\:`) || strings.Contains(id, "..") || strings.HasPrefix(id, ".") {
		return errors.New("contains path characters")
	}
	return nil
}

// Meta is the lightweight listing record for a session.
type Meta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	TurnCount int       `json:"turnCount"`
	Preview   string    `json:"preview,omitempty"`
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists sessions in most-recently-created order with an active
// pointer. Implementations are safe for use by one process at a time.
type Store interface {
	// Save upserts s. An existing session keeps its CreatedAt and list
	// position; a new one goes to the front and becomes active. UpdatedAt
	// is bumped in both cases and written back to s.
	Save(s *Session) error

	// Get returns the session or ErrSessionNotFound.
	Get(id string) (*Session, error)

	// Delete removes the session and clears the active pointer if it
	// pointed at it.
	Delete(id string) error

	// List returns metadata in store order (newest first).
	List() ([]Meta, error)

	// Active returns the active session ID, or "" when none.
	Active() (string, error)

	// SetActive sets the active pointer. An empty id clears it.
	SetActive(id string) error

	// Close releases resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// SQLiteFileName is the database name used inside the storage directory.
const SQLiteFileName = "sessions.db"

// Open creates the store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// prepare validates s and fills in the fields every backend derives.
func prepare(s *Session, existing *Session) error {
	if s == nil {
		return &StoreError{Op: "save", Err: errors.New("nil session")}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := s.Validate(); err != nil {
		return &StoreError{Op: "save", ID: s.ID, Err: err}
	}

	// Millisecond precision matches what the SQLite backend stores.
	now := time.Now().Truncate(time.Millisecond)
	if existing != nil {
		if !existing.CreatedAt.IsZero() {
			s.CreatedAt = existing.CreatedAt
		}
		// Coarse clocks can repeat a reading; keep UpdatedAt strictly
		// increasing per session.
		if !now.After(existing.UpdatedAt) {
			now = existing.UpdatedAt.Add(time.Millisecond)
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.CreatedAt = s.CreatedAt.Truncate(time.Millisecond)
	s.UpdatedAt = now
	s.Title = model.TitleFor(s.Turns)
	return nil
}

// Search filters metas by a case-insensitive match on title or preview.
func Search(metas []Meta, query string) []Meta {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return metas
	}
	var out []Meta
	for _, m := range metas {
		if strings.Contains(strings.ToLower(m.Title), query) ||
			strings.Contains(strings.ToLower(m.Preview), query) {
			out = append(out, m)
		}
	}
	return out
}

// ResolveID finds the session whose ID equals or uniquely starts with
// prefix, so users can type the short form shown by FormatSessionList.
func ResolveID(metas []Meta, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrSessionNotFound
	}
	for _, m := range metas {
		if m.ID == prefix {
			return m.ID, nil
		}
	}
	var match string
	for _, m := range metas {
		if strings.HasPrefix(m.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %q", ErrAmbiguousID, prefix)
			}
			match = m.ID
		}
	}
	if match == "" {
		return "", ErrSessionNotFound
	}
	return match, nil
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// ShortIDLen is the ID prefix length shown in listings.
const ShortIDLen = 8

// FormatSessionList formats sessions as a table. The active session is
// marked with '*'.
func FormatSessionList(sessions []Meta, activeID string) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString(formatPadded("  ID", ShortIDLen+2) + " " +
		formatPadded("Updated", 16) + " " +
		formatPadded("Turns", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")

	for _, s := range sessions {
		marker := "  "
		if s.ID == activeID {
			marker = "* "
		}
		sb.WriteString(formatPadded(marker+util.TruncateRunes(s.ID, ShortIDLen), ShortIDLen+2) + " " +
			formatPadded(s.UpdatedAt.Format("2006-01-02 15:04"), 16) + " " +
			formatPadded(fmt.Sprintf("%d", s.TurnCount), 5) + " " +
			util.TruncateWidth(s.Title, 40) + "\n")
	}
	return sb.String()
}

// formatPadded pads s with spaces to width display cells.
func formatPadded(s string, width int) string {
	if w := util.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousID is returned when an ID prefix matches several sessions.
	ErrAmbiguousID = errors.New("ambiguous session id")
)

// StoreError wraps a backend failure with the operation and session ID.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}
