package loop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilWatcherIsInert(t *testing.T) {
	var w *Watcher
	assert.False(t, w.RestartRequested())
	assert.NoError(t, w.Close())
}

func TestEmptyStampPathDisablesWatching(t *testing.T) {
	w, err := NewWatcher("", nil)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestWatcherNoticesStampTouch(t *testing.T) {
	dir := t.TempDir()
	stamp := filepath.Join(dir, "deploy.stamp")
	require.NoError(t, os.WriteFile(stamp, []byte("v1"), 0644))

	w, err := NewWatcher(stamp, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.RestartRequested())

	// Advance the mtime explicitly so the fallback path is deterministic
	// even on filesystems with coarse timestamps or unreliable inotify.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(stamp, []byte("v2"), 0644))
	require.NoError(t, os.Chtimes(stamp, future, future))

	assert.True(t, w.RestartRequested())
	assert.True(t, w.RestartRequested(), "the flag latches")
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	stamp := filepath.Join(dir, "deploy.stamp")
	require.NoError(t, os.WriteFile(stamp, []byte("v1"), 0644))

	w, err := NewWatcher(stamp, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, w.RestartRequested())
}
