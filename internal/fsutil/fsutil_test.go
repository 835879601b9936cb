package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText_UTF8(t *testing.T) {
	assert.Equal(t, "hello мир", DecodeText([]byte("hello мир")))
}

func TestDecodeText_Windows1251(t *testing.T) {
	// "Привет" in cp1251.
	cp1251 := []byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2}
	assert.Equal(t, "Привет", DecodeText(cp1251))
}

func TestDecodeText_Empty(t *testing.T) {
	assert.Equal(t, "", DecodeText(nil))
}

func TestReadFileText(t *testing.T) {
	t.Run("reads existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

		got, err := ReadFileText(path)
		require.NoError(t, err)
		assert.Equal(t, "content", got)
	})

	t.Run("missing file fails without retrying", func(t *testing.T) {
		_, err := ReadFileText(filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})

	t.Run("empty file reads as empty string", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		got, err := ReadFileText(path)
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("same"))
	b := HashBytes([]byte("same"))
	c := HashBytes([]byte("different"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	content := []byte("fingerprint me")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(content), got)
}

func TestProbeDir(t *testing.T) {
	t.Run("accessible directory", func(t *testing.T) {
		p := ProbeDir(t.TempDir())
		assert.True(t, p.PathExists)
		assert.True(t, p.IsDirectory)
		assert.True(t, p.Readable)
		assert.True(t, p.Writable)
		assert.True(t, p.Accessible)
		assert.Empty(t, p.ErrorDetails)
	})

	t.Run("missing path", func(t *testing.T) {
		p := ProbeDir(filepath.Join(t.TempDir(), "nope"))
		assert.False(t, p.PathExists)
		assert.False(t, p.Accessible)
		assert.Equal(t, "Path does not exist", p.ErrorDetails)
	})

	t.Run("file is not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		p := ProbeDir(path)
		assert.True(t, p.PathExists)
		assert.False(t, p.IsDirectory)
		assert.Equal(t, "Path is not a directory", p.ErrorDetails)
	})
}
