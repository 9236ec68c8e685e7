// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/model"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("file", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		fn(t, store)
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), SQLiteFileName))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		fn(t, store)
	})
}

func sessionWith(texts ...string) *Session {
	s := NewSession()
	for i, text := range texts {
		if i%2 == 0 {
			s.Turns = append(s.Turns, model.NewUserTurn(text, nil))
		} else {
			s.Turns = append(s.Turns, model.NewModelTurn(text))
		}
	}
	return s
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func TestStore_SaveAndGet(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		sess := sessionWith("Hello there", "Hi!")
		sess.Model = model.DefaultModel
		require.NoError(t, store.Save(sess))

		got, err := store.Get(sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.Equal(t, "Hello there", got.Title)
		assert.Equal(t, model.DefaultModel, got.Model)
		require.Len(t, got.Turns, 2)
		assert.Equal(t, model.RoleUser, got.Turns[0].Role)
		assert.Equal(t, "Hi!", got.Turns[1].Text())
	})
}

func TestStore_SaveTwiceUpdatesInPlace(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		sess := sessionWith("first question")
		require.NoError(t, store.Save(sess))
		created := sess.CreatedAt
		firstUpdate := sess.UpdatedAt

		sess.Turns = append(sess.Turns, model.NewModelTurn("answer"))
		require.NoError(t, store.Save(sess))

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 1)

		got, err := store.Get(sess.ID)
		require.NoError(t, err)
		assert.True(t, got.CreatedAt.Equal(created), "CreatedAt changed: %v -> %v", created, got.CreatedAt)
		assert.True(t, got.UpdatedAt.After(firstUpdate), "UpdatedAt did not advance")
		assert.Len(t, got.Turns, 2)
		assert.Equal(t, 2, metas[0].TurnCount)
	})
}

func TestStore_NewSessionsGoToFrontAndBecomeActive(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		a := sessionWith("alpha")
		b := sessionWith("beta")
		require.NoError(t, store.Save(a))
		require.NoError(t, store.Save(b))

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, b.ID, metas[0].ID)
		assert.Equal(t, a.ID, metas[1].ID)

		active, err := store.Active()
		require.NoError(t, err)
		assert.Equal(t, b.ID, active)

		// Updating the older session keeps its position.
		a.Turns = append(a.Turns, model.NewModelTurn("reply"))
		require.NoError(t, store.Save(a))
		metas, err = store.List()
		require.NoError(t, err)
		assert.Equal(t, b.ID, metas[0].ID)
	})
}

func TestStore_DeleteClearsActive(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		a := sessionWith("alpha")
		b := sessionWith("beta")
		require.NoError(t, store.Save(a))
		require.NoError(t, store.Save(b))

		require.NoError(t, store.Delete(b.ID))
		active, err := store.Active()
		require.NoError(t, err)
		assert.Empty(t, active)

		_, err = store.Get(b.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		// Deleting a non-active session leaves the pointer alone.
		require.NoError(t, store.SetActive(a.ID))
		c := sessionWith("gamma")
		require.NoError(t, store.Save(c))
		require.NoError(t, store.SetActive(a.ID))
		require.NoError(t, store.Delete(c.ID))
		active, err = store.Active()
		require.NoError(t, err)
		assert.Equal(t, a.ID, active)
	})
}

func TestStore_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, err := store.Get("missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, store.Delete("missing"), ErrSessionNotFound)
		assert.ErrorIs(t, store.SetActive("missing"), ErrSessionNotFound)
		require.NoError(t, store.SetActive(""))
	})
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		sess := sessionWith("hello")
		sess.ID = "../escape"
		err := store.Save(sess)
		require.Error(t, err)

		var storeErr *StoreError
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "save", storeErr.Op)
	})
}

func TestStore_EmptySessionTitle(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		sess := NewSession()
		require.NoError(t, store.Save(sess))
		assert.Equal(t, model.DefaultTitle, sess.Title)
	})
}

// =============================================================================
// FILE STORE
// =============================================================================

func TestFileStore_RebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	a := sessionWith("alpha")
	b := sessionWith("beta")
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Save(b))
	require.NoError(t, os.Remove(filepath.Join(dir, IndexFileName)))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
}

func TestFileStore_MaxSessions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	store.MaxSessions = 2

	first := sessionWith("one")
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(sessionWith("two")))
	require.NoError(t, store.Save(sessionWith("three")))

	metas, err := store.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)
	_, err = store.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFileStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	sess := sessionWith("secret")
	require.NoError(t, store.Save(sess))

	info, err := os.Stat(filepath.Join(dir, sess.ID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// =============================================================================
// HELPERS
// =============================================================================

func TestSessionConversationRoundTrip(t *testing.T) {
	conv := model.NewConversation()
	conv.AddUser("question", nil)
	conv.AddModel("answer")

	sess := FromConversation(conv, "gemini-2.5-pro")
	assert.Equal(t, conv.ID, sess.ID)
	assert.Equal(t, "question", sess.Title)

	back := sess.Conversation()
	assert.Equal(t, conv.ID, back.ID)
	assert.Equal(t, 2, back.Len())
}

func TestResolveID(t *testing.T) {
	metas := []Meta{{ID: "abc123"}, {ID: "abd456"}, {ID: "xyz"}}

	id, err := ResolveID(metas, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ResolveID(metas, "ab")
	assert.ErrorIs(t, err, ErrAmbiguousID)

	_, err = ResolveID(metas, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	id, err = ResolveID(metas, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", id)
}

func TestSearch(t *testing.T) {
	metas := []Meta{
		{ID: "1", Title: "Go generics"},
		{ID: "2", Title: "Cooking", Preview: "how long to boil GO-ji berries"},
		{ID: "3", Title: "Travel"},
	}
	got := Search(metas, "go")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Len(t, Search(metas, "  "), 3)
}

func TestFormatSessionList(t *testing.T) {
	assert.Equal(t, "No sessions found.", FormatSessionList(nil, ""))

	out := FormatSessionList([]Meta{
		{ID: "0123456789abcdef", Title: "First", TurnCount: 4, UpdatedAt: time.Now()},
		{ID: "fedcba9876543210", Title: "Second", TurnCount: 2, UpdatedAt: time.Now()},
	}, "fedcba9876543210")

	assert.Contains(t, out, "  01234567")
	assert.Contains(t, out, "* fedcba98")
	assert.NotContains(t, out, "0123456789")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_ReportsIndexChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	var fired atomic.Int32
	w, err := NewWatcher(dir, 50*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	t.Cleanup(func() { w.Close() })

	require.NoError(t, store.Save(sessionWith("hello")))

	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		3*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	assert.True(t, relevant("/x/index.json"))
	assert.True(t, relevant("/x/sessions.db-wal"))
	assert.False(t, relevant("/x/.tmp-1234"))
	assert.False(t, relevant("/x/notes.txt"))
}
