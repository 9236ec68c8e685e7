// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"errors"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports sessions to a readable YAML document. Image data is
// replaced by its name and MIME type.
type YAMLExporter struct {
	options *Options
}

type yamlSession struct {
	ID       string     `yaml:"id"`
	Title    string     `yaml:"title"`
	Model    string     `yaml:"model,omitempty"`
	Created  *time.Time `yaml:"created,omitempty"`
	Updated  *time.Time `yaml:"updated,omitempty"`
	Exported *time.Time `yaml:"exported,omitempty"`
	Turns    []yamlTurn `yaml:"turns"`
}

type yamlTurn struct {
	Role   string     `yaml:"role"`
	Time   *time.Time `yaml:"time,omitempty"`
	Images []string   `yaml:"images,omitempty"`
	Text   string     `yaml:"text"`
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// Export converts a session to YAML.
func (e *YAMLExporter) Export(sess *storage.Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("session is nil")
	}

	doc := yamlSession{
		ID:    sess.ID,
		Title: sess.Title,
		Model: sess.Model,
		Turns: make([]yamlTurn, 0, len(sess.Turns)),
	}
	if e.options.IncludeMetadata {
		now := time.Now()
		doc.Created = &sess.CreatedAt
		doc.Updated = &sess.UpdatedAt
		doc.Exported = &now
	}

	for _, t := range sess.Turns {
		yt := yamlTurn{Role: t.Role.String(), Text: t.Text()}
		if e.options.IncludeTimestamps && !t.Timestamp.IsZero() {
			ts := t.Timestamp
			yt.Time = &ts
		}
		for _, img := range t.Images() {
			yt.Images = append(yt.Images, imageLabel(img.Name, img.MIMEType))
		}
		doc.Turns = append(doc.Turns, yt)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
