package watch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDropPath(t *testing.T) {
	root := filepath.FromSlash("/srv/drop")

	t.Run("full layout", func(t *testing.T) {
		dp, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/20250115/to/htdocs/api/analog_numbers/list.php"))
		require.NoError(t, err)
		assert.Equal(t, "20250115", dp.DateFolder)
		assert.Equal(t, "htdocs/api/analog_numbers", dp.SourceDir)
		assert.Equal(t, "list.php", dp.Filename)
	})

	t.Run("file directly under to", func(t *testing.T) {
		dp, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/20250115/to/readme.txt"))
		require.NoError(t, err)
		assert.Equal(t, "", dp.SourceDir)
		assert.Equal(t, "readme.txt", dp.Filename)
	})

	t.Run("legacy DDMMYYYY date", func(t *testing.T) {
		dp, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/15012025/to/script/x.sh"))
		require.NoError(t, err)
		assert.Equal(t, "15012025", dp.DateFolder)
	})

	t.Run("outside root", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/other/20250115/to/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	t.Run("no date folder", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/notadate/to/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	t.Run("invalid calendar date", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/99999999/to/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	t.Run("missing to marker", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/20250115/from/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	t.Run("file directly under date folder", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/20250115/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	// The layout is anchored at the watch root: a vendor prefix before
	// the date folder, or extra segments between it and to/, fall
	// outside the convention and are ignored.
	t.Run("nested date folder", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/vendorA/20250115/to/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})

	t.Run("segment between date and to", func(t *testing.T) {
		_, err := ParseDropPath(root, filepath.FromSlash("/srv/drop/20250115/batch1/to/a.txt"))
		assert.ErrorIs(t, err, ErrIgnored)
	})
}

func TestIsTransient(t *testing.T) {
	transient := []string{
		".hidden", ".file.swp", "~$report.docx",
		"upload.tmp", "upload.TEMP", "page.html.part",
		"video.crdownload", "backup~",
	}
	for _, name := range transient {
		assert.True(t, IsTransient(name), "expected %q to be transient", name)
	}

	durable := []string{"index.php", "dial.sh", "numbers.txt", "temp_report.txt"}
	for _, name := range durable {
		assert.False(t, IsTransient(name), "expected %q to be durable", name)
	}
}
