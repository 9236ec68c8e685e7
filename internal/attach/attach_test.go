// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoad_EncodesImages(t *testing.T) {
	path := writeFile(t, "shot.png", pngHeader)

	images, err := Load([]string{path})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "image/png", images[0].MIMEType)
	assert.Equal(t, "shot.png", images[0].Name)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), images[0].Data)
}

func TestLoad_SniffsUnknownExtension(t *testing.T) {
	path := writeFile(t, "clipboard", pngHeader)

	img, err := LoadOne(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestLoad_RejectsNonImages(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("just text"))

	_, err := LoadOne(path)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestLoad_RejectsEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.png", nil)

	_, err := LoadOne(path)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestLoad_TooMany(t *testing.T) {
	paths := make([]string, MaxImages+1)
	_, err := Load(paths)
	assert.ErrorIs(t, err, ErrTooMany)
}

func TestLoad_Missing(t *testing.T) {
	_, err := LoadOne(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAttachment_ValidateSize(t *testing.T) {
	a := Attachment{Path: "big.png", MIMEType: "image/png", Size: MaxImageSize + 1}
	assert.Error(t, a.Validate())

	a.Size = MaxImageSize
	assert.NoError(t, a.Validate())
}

func TestPending_AddTakeRestore(t *testing.T) {
	var p Pending
	a := writeFile(t, "a.png", pngHeader)
	b := writeFile(t, "b.png", pngHeader)

	_, err := p.Add(a)
	require.NoError(t, err)
	_, err = p.Add(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, p.Names())

	taken := p.Take()
	assert.Len(t, taken, 2)
	assert.Equal(t, 0, p.Len())

	_, err = p.Add(a)
	require.NoError(t, err)
	p.Restore(taken)
	assert.Equal(t, []string{"a.png", "b.png", "a.png"}, p.Names())

	p.Clear()
	assert.Equal(t, 0, p.Len())
}

func TestPending_Limit(t *testing.T) {
	var p Pending
	path := writeFile(t, "x.png", pngHeader)
	for i := 0; i < MaxImages; i++ {
		_, err := p.Add(path)
		require.NoError(t, err)
	}
	_, err := p.Add(path)
	assert.ErrorIs(t, err, ErrTooMany)
}
