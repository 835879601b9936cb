package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	err := Run(context.Background(), []string{"patchwatch", "version"})
	assert.NoError(t, err)
}

func TestRun_Help(t *testing.T) {
	err := Run(context.Background(), []string{"patchwatch", "--help"})
	assert.NoError(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := Run(context.Background(), []string{"patchwatch", "--config", path, "config", "init"})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	err = Run(context.Background(), []string{"patchwatch", "--no-color", "--config", path, "config", "show"})
	assert.NoError(t, err)
}

func TestConfigShow_MissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	err := Run(context.Background(), []string{"patchwatch", "--config", path, "config", "show"})
	assert.Error(t, err)
}
