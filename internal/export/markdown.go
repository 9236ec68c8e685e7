// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions to Markdown.
type MarkdownExporter struct {
	options *Options
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title     string `yaml:"title"`
	Model     string `yaml:"model,omitempty"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Turns     int    `yaml:"turns"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a session to Markdown.
func (e *MarkdownExporter) Export(sess *storage.Session) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if len(sess.Turns) == 0 {
		return nil, ErrEmptySession
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontmatter{
			Title:     sess.Title,
			Model:     sess.Model,
			Date:      sess.CreatedAt.Format(time.RFC3339),
			Updated:   sess.UpdatedAt.Format(time.RFC3339),
			Turns:     len(sess.Turns),
			Exported:  time.Now().Format(time.RFC3339),
			Generator: "gemchat",
		})
		if err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(sess.Title)))

	if e.options.IncludeMetadata {
		if sess.Model != "" {
			sb.WriteString(fmt.Sprintf("- **Model**: %s\n", sess.Model))
		}
		sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(sess.CreatedAt)))
		sb.WriteString(fmt.Sprintf("- **Last Updated**: %s\n", formatTimestamp(sess.UpdatedAt)))
		sb.WriteString(fmt.Sprintf("- **Turns**: %d\n", len(sess.Turns)))
		sb.WriteString("\n---\n\n")
	}

	for i, t := range sess.Turns {
		if e.options.IncludeTimestamps && !t.Timestamp.IsZero() {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n",
				t.Role.DisplayName(), formatShortTimestamp(t.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", t.Role.DisplayName()))
		}

		for _, img := range t.Images() {
			sb.WriteString(fmt.Sprintf("*[%s]*\n\n", imageLabel(img.Name, img.MIMEType)))
		}

		sb.WriteString(strings.TrimSpace(t.Text()))
		sb.WriteString("\n\n")

		if i < len(sess.Turns)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from gemchat on %s*\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// RenderTurns renders turns as plain Markdown without metadata, for
// terminal display.
func RenderTurns(turns []model.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(fmt.Sprintf("**%s**\n\n", t.Role.DisplayName()))
		for _, img := range t.Images() {
			sb.WriteString(fmt.Sprintf("*[%s]*\n\n", imageLabel(img.Name, img.MIMEType)))
		}
		sb.WriteString(strings.TrimSpace(t.Text()))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

func imageLabel(name, mime string) string {
	if name == "" {
		return "image: " + mime
	}
	return fmt.Sprintf("image: %s (%s)", name, mime)
}
