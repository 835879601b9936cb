package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvent(t *testing.T, ch <-chan RawEvent, timeout time.Duration) RawEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return RawEvent{}
	}
}

func TestWatcher_WriteDebounced(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	ev := collectEvent(t, w.Events(), 5*time.Second)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, OpWrite, ev.Op)
}

func TestWatcher_RapidWritesCoalesce(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, 100*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	path := filepath.Join(root, "busy.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	ev := collectEvent(t, w.Events(), 5*time.Second)
	assert.Equal(t, path, ev.Path)

	// No second event for the same write burst.
	select {
	case extra := <-w.Events():
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_Remove(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w, err := NewWatcher(root, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.Remove(path))

	ev := collectEvent(t, w.Events(), 5*time.Second)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, OpRemove, ev.Op)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	sub := filepath.Join(root, "20250115", "to")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Give the watcher a moment to attach to the new directories.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(sub, "late.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path && ev.Op == OpWrite {
				return
			}
		case <-deadline:
			t.Fatal("never saw event for file in new directory")
		}
	}
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), time.Second)
	assert.Error(t, err)
}
