// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
)

func testSession() *storage.Session {
	img := model.InlineImage{MIMEType: "image/png", Data: "aGVsbG8=", Name: "cat.png"}
	return &storage.Session{
		ID:        "sess-1",
		Title:     "What is in this *picture*?",
		Model:     "gemini-2.5-flash",
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		Turns: []model.Turn{
			model.NewUserTurn("What is in this *picture*?", []model.InlineImage{img}),
			model.NewModelTurn("A cat sitting on a keyboard."),
		},
	}
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(testSession())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)

	checks := []string{
		"---\ntitle: ",
		"generator: gemchat",
		"# What is in this \\*picture\\*?",
		"### You",
		"### Gemini",
		"*[image: cat.png (image/png)]*",
		"A cat sitting on a keyboard.",
	}
	for _, want := range checks {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "aGVsbG8=") {
		t.Error("markdown should not embed image data")
	}
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := &Options{}
	out, err := NewMarkdownExporter(opts).Export(testSession())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.HasPrefix(string(out), "---") {
		t.Error("frontmatter written with IncludeMetadata=false")
	}
	if strings.Contains(string(out), "<sub>") {
		t.Error("timestamps written with IncludeTimestamps=false")
	}
}

func TestMarkdownExporter_EmptySession(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(&storage.Session{ID: "x"})
	if !errors.Is(err, ErrEmptySession) {
		t.Errorf("err = %v, want ErrEmptySession", err)
	}
}

func TestJSONExporter_MatchesStoreShape(t *testing.T) {
	sess := testSession()
	out, err := NewJSONExporter(nil).Export(sess)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var back storage.Session
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not a session: %v", err)
	}
	if back.ID != sess.ID || len(back.Turns) != 2 {
		t.Errorf("decoded %+v", back)
	}
	if imgs := back.Turns[0].Images(); len(imgs) != 1 || imgs[0].Data != "aGVsbG8=" {
		t.Errorf("image data lost: %+v", imgs)
	}
}

func TestYAMLExporter(t *testing.T) {
	out, err := NewYAMLExporter(nil).Export(testSession())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var doc yamlSession
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid yaml: %v\n%s", err, out)
	}
	if doc.Title != "What is in this *picture*?" {
		t.Errorf("title = %q", doc.Title)
	}
	if len(doc.Turns) != 2 || doc.Turns[0].Role != "user" || doc.Turns[1].Role != "model" {
		t.Fatalf("turns = %+v", doc.Turns)
	}
	if len(doc.Turns[0].Images) != 1 || doc.Turns[0].Images[0] != "image: cat.png (image/png)" {
		t.Errorf("images = %v", doc.Turns[0].Images)
	}
	if doc.Created == nil {
		t.Error("metadata missing")
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		name string
		ext  string
	}{
		{"md", ".md"},
		{"Markdown", ".md"},
		{".json", ".json"},
		{"yml", ".yaml"},
		{"yaml", ".yaml"},
	}
	for _, tt := range tests {
		e, err := ForFormat(tt.name, nil)
		if err != nil {
			t.Errorf("ForFormat(%q) error: %v", tt.name, err)
			continue
		}
		if e.FileExtension() != tt.ext {
			t.Errorf("ForFormat(%q) ext = %q, want %q", tt.name, e.FileExtension(), tt.ext)
		}
	}

	if _, err := ForFormat("pdf", nil); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ForFormat(pdf) err = %v", err)
	}
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.OutputDir = dir

	path, err := ExportToFile(testSession(), NewJSONExporter(opts), opts)
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q not in %q", path, dir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "gemchat_What_is_in_this_-picture-") || !strings.HasSuffix(base, ".json") {
		t.Errorf("unexpected file name %q", base)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not written: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "session"},
		{"a/b\\c", "a-b-c"},
		{"hello world", "hello_world"},
		{"tab\there", "tab_here"},
		{"bell\x07", "bell-"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
