// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// NewChat cancels any active send and starts an empty conversation. The
// empty conversation is not saved until its first send.
func (e *Engine) NewChat() {
	e.Stop()
	e.update(func() {
		e.conv = model.NewConversation()
		e.resetViewLocked()
	})
	e.logger.Info("new chat")
}

// OpenSession cancels any active send and loads a saved session. id may
// be a unique prefix.
func (e *Engine) OpenSession(id string) error {
	if e.store == nil {
		return ErrNoStore
	}
	id, err := e.resolve(id)
	if err != nil {
		return err
	}
	sess, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if err := e.store.SetActive(sess.ID); err != nil {
		e.logger.Warn("set active session failed", "session", sess.ID, "error", err)
	}

	e.Stop()
	e.update(func() {
		e.conv = sess.Conversation()
		e.resetViewLocked()
	})
	e.logger.Info("session opened", "session", sess.ID, "turns", len(sess.Turns))
	return nil
}

// DeleteSession removes a saved session. Deleting the open session also
// starts a new chat.
func (e *Engine) DeleteSession(id string) error {
	if e.store == nil {
		return ErrNoStore
	}
	id, err := e.resolve(id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.logger.Info("session deleted", "session", id)

	e.mu.Lock()
	current := e.conv.ID == id
	e.mu.Unlock()
	if current {
		e.NewChat()
	} else {
		e.notify()
	}
	return nil
}

// Sessions lists saved sessions, newest first.
func (e *Engine) Sessions() ([]storage.Meta, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store.List()
}

// ActiveSessionID returns the store's active pointer.
func (e *Engine) ActiveSessionID() string {
	if e.store == nil {
		return ""
	}
	id, err := e.store.Active()
	if err != nil {
		e.logger.Warn("read active session failed", "error", err)
		return ""
	}
	return id
}

// Resume opens the store's active session, if any. A dangling pointer is
// cleared and reported as no session.
func (e *Engine) Resume() (bool, error) {
	id := e.ActiveSessionID()
	if id == "" {
		return false, nil
	}
	err := e.OpenSession(id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		e.store.SetActive("")
		return false, nil
	}
	return err == nil, err
}

// CurrentSession returns the open conversation as a session value, for
// export. It is not saved.
func (e *Engine) CurrentSession() *storage.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return storage.FromConversation(e.conv, e.opts.Model)
}

// LoadSession returns a saved session without opening it.
func (e *Engine) LoadSession(id string) (*storage.Session, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	id, err := e.resolve(id)
	if err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// Refresh notifies listeners so they re-read the session list, e.g. after
// the store changed on disk.
func (e *Engine) Refresh() {
	e.notify()
}

func (e *Engine) resolve(id string) (string, error) {
	metas, err := e.store.List()
	if err != nil {
		return "", err
	}
	return storage.ResolveID(metas, id)
}

func (e *Engine) resetViewLocked() {
	e.partial = ""
	e.typing = false
	e.retrying = false
	e.lastErr = nil
}

// persist saves snap, logging instead of failing the send.
func (e *Engine) persist(snap *storage.Session) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(snap); err != nil {
		e.logger.Error("save session failed", "session", snap.ID, "error", err)
		return
	}
	e.logger.Debug("session saved", "session", snap.ID, "turns", len(snap.Turns))
}
