package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExport(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"call.srt", true},
		{"call.TXT", true},
		{"call.vtt", false},
		{"call", false},
		{"call.srt.bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsExport(tt.name))
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := writeExports(t, map[string]string{
		"b.srt":          "x",
		"a.txt":          "x",
		"sub/c.SRT":      "x",
		"sub/readme.md":  "x",
		".git/d.txt":     "x",
		"sub/.draft.txt": "x",
	})

	files, err := Discover(dir)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f))
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.txt", "b.srt", "sub/c.SRT"}, rel)
}

func TestDiscover_SingleFile(t *testing.T) {
	dir := writeExports(t, map[string]string{"call.srt": "x", "call.md": "x"})

	files, err := Discover(filepath.Join(dir, "call.srt"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = Discover(filepath.Join(dir, "call.md"))
	assert.ErrorContains(t, err, "not a transcript export")

	_, err = Discover(filepath.Join(dir, "missing.srt"))
	assert.True(t, os.IsNotExist(err))
}
