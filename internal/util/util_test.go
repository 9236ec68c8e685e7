// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	data := []byte(`{"id":"abc"}`)

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", content, data)
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "deep", "index.json")

	if err := AtomicWriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	if err := AtomicWriteFile(path, []byte("initial"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the target file, found %d entries", len(entries))
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newdir", "test.txt")

	if err := AtomicWriteFileWithDir(path, []byte("test"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		input    string
		max      int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"日本語のテキスト", 5, "日本..."},
	}

	for _, tc := range testCases {
		got := TruncateRunes(tc.input, tc.max)
		if got != tc.expected {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.expected)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		input    string
		max      int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"你好世界", 8, "你好世界"},
		{"你好世界", 5, "你..."},
		{"abc", 0, ""},
	}

	for _, tc := range testCases {
		got := TruncateWidth(tc.input, tc.max)
		if got != tc.expected {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.expected)
		}
	}
}

func TestStringWidth(t *testing.T) {
	if w := StringWidth("abc"); w != 3 {
		t.Errorf("Expected width 3, got %d", w)
	}
	if w := StringWidth("新对话"); w != 6 {
		t.Errorf("Expected width 6 for CJK, got %d", w)
	}
}

func TestSafeSubstring(t *testing.T) {
	if got := SafeSubstring("héllo", 1, 3); got != "él" {
		t.Errorf("Expected %q, got %q", "él", got)
	}
	if got := SafeSubstring("abc", -1, 99); got != "abc" {
		t.Errorf("Expected clamped substring, got %q", got)
	}
	if got := SafeSubstring("abc", 5, 6); got != "" {
		t.Errorf("Expected empty substring, got %q", got)
	}
}

func TestSingleLine(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  hello\n\tworld  ", "hello world"},
		{"one", "one"},
		{"\n\n", ""},
		// Decomposed e + combining acute becomes the composed form.
		{"café", "café"},
	}

	for _, tc := range testCases {
		if got := SingleLine(tc.input); got != tc.expected {
			t.Errorf("SingleLine(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestRuneLen(t *testing.T) {
	if n := RuneLen("日本"); n != 2 {
		t.Errorf("Expected 2 runes, got %d", n)
	}
}
