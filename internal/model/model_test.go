// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AddUserSkipsDuplicateResend(t *testing.T) {
	conv := NewConversation()

	if !conv.AddUser("hello", nil) {
		t.Fatal("Expected first AddUser to append")
	}
	if conv.AddUser("hello", nil) {
		t.Error("Expected resend of the same trailing prompt to be skipped")
	}
	if conv.Len() != 1 {
		t.Errorf("Expected 1 turn, got %d", conv.Len())
	}

	conv.AddModel("hi")
	if !conv.AddUser("hello", nil) {
		t.Error("Expected the same text after a model turn to append")
	}
	if conv.Len() != 3 {
		t.Errorf("Expected 3 turns, got %d", conv.Len())
	}
}

func TestConversation_AddUserComparesImages(t *testing.T) {
	cat := InlineImage{MIMEType: "image/png", Data: "Y2F0", Name: "cat.png"}
	dog := InlineImage{MIMEType: "image/png", Data: "ZG9n", Name: "dog.png"}

	conv := NewConversation()
	conv.AddUser("what is this?", []InlineImage{cat})

	renamed := cat
	renamed.Name = "copy.png"
	if conv.AddUser("what is this?", []InlineImage{renamed}) {
		t.Error("Expected the same image under another name to count as a resend")
	}
	if !conv.AddUser("what is this?", []InlineImage{dog}) {
		t.Fatal("Expected a different image to append a new turn")
	}
	if conv.Len() != 2 {
		t.Fatalf("Expected 2 turns, got %d", conv.Len())
	}
	last, _ := conv.Last()
	if imgs := last.Images(); len(imgs) != 1 || imgs[0].Data != dog.Data {
		t.Errorf("Expected the new image on the last turn, got %+v", imgs)
	}
	if !conv.AddUser("what is this?", nil) {
		t.Error("Expected dropping the images to append a new turn")
	}
}

func TestConversation_HistoryExcludesTrailingUser(t *testing.T) {
	conv := NewConversation()
	conv.AddUser("first", nil)
	conv.AddModel("answer")
	conv.AddUser("second", nil)

	history := conv.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history turns, got %d", len(history))
	}
	if history[1].Role != RoleModel {
		t.Errorf("Expected last history turn to be model, got %s", history[1].Role)
	}

	conv.AddModel("answer 2")
	if got := len(conv.History()); got != 4 {
		t.Errorf("Expected full history when last turn is model, got %d", got)
	}
}

func TestConversation_RemoveLastUser(t *testing.T) {
	conv := NewConversation()
	conv.AddUser("question", nil)

	if !conv.RemoveLastUser() {
		t.Fatal("Expected trailing user turn to be removed")
	}
	if !conv.IsEmpty() {
		t.Errorf("Expected empty conversation, got %d turns", conv.Len())
	}

	conv.AddUser("q", nil)
	conv.AddModel("a")
	if conv.RemoveLastUser() {
		t.Error("RemoveLastUser must not remove a model turn")
	}
}

func TestConversation_Title(t *testing.T) {
	conv := NewConversation()
	if conv.Title() != DefaultTitle {
		t.Errorf("Expected default title, got %q", conv.Title())
	}

	conv.AddUser("  What is\nthe weather  ", nil)
	if got := conv.Title(); got != "What is the weather" {
		t.Errorf("Expected folded title, got %q", got)
	}

	long := NewConversation()
	long.AddUser(strings.Repeat("x", 200), nil)
	if w := len(long.Title()); w != TitleWidth {
		t.Errorf("Expected title width %d, got %d", TitleWidth, w)
	}
}

func TestConversation_SnapshotIsIndependent(t *testing.T) {
	conv := NewConversation()
	conv.AddUser("hello", nil)

	snap := conv.Snapshot()
	snap[0].Parts[0].Text = "mutated"

	if conv.Turns[0].Text() != "hello" {
		t.Errorf("Snapshot shares parts with the conversation")
	}
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestNewUserTurn_ImagesBeforeText(t *testing.T) {
	img := InlineImage{MIMEType: "image/png", Data: "AAAA"}
	turn := NewUserTurn("describe", []InlineImage{img})

	if len(turn.Parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(turn.Parts))
	}
	if turn.Parts[0].Image == nil {
		t.Error("Expected image part first")
	}
	if turn.Parts[1].Text != "describe" {
		t.Errorf("Expected text part last, got %q", turn.Parts[1].Text)
	}
	if got := len(turn.Images()); got != 1 {
		t.Errorf("Expected 1 image, got %d", got)
	}
	if turn.Text() != "describe" {
		t.Errorf("Expected text %q, got %q", "describe", turn.Text())
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("Unexpected user display name %q", RoleUser.DisplayName())
	}
	if RoleModel.DisplayName() != "Gemini" {
		t.Errorf("Unexpected model display name %q", RoleModel.DisplayName())
	}
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"flash", "gemini-2.5-flash"},
		{"PRO", "gemini-2.5-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
		{"gemini-9-experimental", "gemini-9-experimental"},
	}
	for _, tc := range tests {
		if got := ResolveModel(tc.input); got != tc.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestModelInfo_ContextString(t *testing.T) {
	info := ModelInfo{MaxTokens: 1048576}
	if got := info.ContextString(); got != "1.0M tokens" {
		t.Errorf("Expected 1.0M tokens, got %q", got)
	}
	info.MaxTokens = 32768
	if got := info.ContextString(); got != "32K tokens" {
		t.Errorf("Expected 32K tokens, got %q", got)
	}
}
