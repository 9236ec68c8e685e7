// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach loads image files for multimodal prompts.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jeranaias/gemchat/internal/model"
)

const (
	// MaxImages is the largest number of images sent with one message.
	MaxImages = 4

	// MaxImageSize is the largest accepted image file (10MB).
	MaxImageSize = 10 << 20
)

// SupportedMIMETypes are the image types the API accepts inline.
var SupportedMIMETypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
}

var extensionTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var (
	// ErrTooMany is returned when more than MaxImages are attached.
	ErrTooMany = fmt.Errorf("at most %d images per message", MaxImages)

	// ErrNotImage is returned for files that are not a supported image.
	ErrNotImage = errors.New("not a supported image")
)

// =============================================================================
// ATTACHMENT
// =============================================================================

// Attachment describes a file before it is read into memory.
type Attachment struct {
	Path     string
	MIMEType string
	Size     int64
}

// Validate checks the size and type limits.
func (a Attachment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Path, validation.Required),
		validation.Field(&a.Size,
			validation.Required.Error("file is empty"),
			validation.Max(int64(MaxImageSize)).Error("file exceeds 10MB")),
		validation.Field(&a.MIMEType,
			validation.Required,
			validation.In(toAny(SupportedMIMETypes)...).Error("unsupported image type")),
	)
}

// Inspect stats path and detects its MIME type from the extension, falling
// back to the file content.
func Inspect(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, err
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("%s: is a directory", path)
	}

	a := Attachment{Path: path, Size: info.Size()}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		a.MIMEType = mt
		return a, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Attachment{}, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Attachment{}, err
	}
	a.MIMEType = http.DetectContentType(head[:n])
	return a, nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load validates and reads paths into inline images, in order.
func Load(paths []string) ([]model.InlineImage, error) {
	if len(paths) > MaxImages {
		return nil, ErrTooMany
	}

	images := make([]model.InlineImage, 0, len(paths))
	for _, path := range paths {
		img, err := LoadOne(path)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// LoadOne validates and reads a single image.
func LoadOne(path string) (model.InlineImage, error) {
	a, err := Inspect(path)
	if err != nil {
		return model.InlineImage{}, fmt.Errorf("attach %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return model.InlineImage{}, fmt.Errorf("attach %s: %w: %v", filepath.Base(path), ErrNotImage, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.InlineImage{}, fmt.Errorf("attach %s: %w", path, err)
	}
	return model.InlineImage{
		MIMEType: a.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Name:     filepath.Base(path),
	}, nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// =============================================================================
// PENDING SET
// =============================================================================

// Pending holds images staged for the next message. It is safe for
// concurrent use.
type Pending struct {
	mu     sync.Mutex
	images []model.InlineImage
}

// Add loads path and stages it.
func (p *Pending) Add(path string) (model.InlineImage, error) {
	p.mu.Lock()
	full := len(p.images) >= MaxImages
	p.mu.Unlock()
	if full {
		return model.InlineImage{}, ErrTooMany
	}

	img, err := LoadOne(path)
	if err != nil {
		return model.InlineImage{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.images) >= MaxImages {
		return model.InlineImage{}, ErrTooMany
	}
	p.images = append(p.images, img)
	return img, nil
}

// Len returns the number of staged images.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.images)
}

// Names returns the staged file names in order.
func (p *Pending) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.images))
	for i, img := range p.images {
		names[i] = img.Name
	}
	return names
}

// Take returns the staged images and empties the set.
func (p *Pending) Take() []model.InlineImage {
	p.mu.Lock()
	defer p.mu.Unlock()
	images := p.images
	p.images = nil
	return images
}

// Restore puts images back in front of anything staged since, e.g. after a
// send was refused.
func (p *Pending) Restore(images []model.InlineImage) {
	if len(images) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(append([]model.InlineImage(nil), images...), p.images...)
	if len(p.images) > MaxImages {
		p.images = p.images[:MaxImages]
	}
}

// Clear drops all staged images.
func (p *Pending) Clear() {
	p.mu.Lock()
	p.images = nil
	p.mu.Unlock()
}
