package source

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 20 * time.Millisecond

func startWatcher(t *testing.T, path string, debounce time.Duration) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	w, err := NewWatcher(path, debounce, func() { fired.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return &fired
}

func TestNewWatcher_RejectsDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewWatcher(t.TempDir(), 0, func() {}, nil)
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.sqlite"), 0, func() {}, nil)
	assert.Error(t, err)
}

func TestWatcher_FiresOnDatabaseWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wiki.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	fired := startWatcher(t, path, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	}

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "a burst of writes is coalesced")
}

func TestWatcher_FiresOnSidecarFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wiki.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	fired := startWatcher(t, path, testDebounce)

	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wiki.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	fired := startWatcher(t, path, testDebounce)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(10 * testDebounce)
	assert.Equal(t, int32(0), fired.Load())
}

func TestWatcher_Matches(t *testing.T) {
	t.Parallel()

	w := &Watcher{path: "/data/wiki.sqlite"}
	assert.True(t, w.matches("/data/wiki.sqlite"))
	assert.True(t, w.matches("/data/wiki.sqlite-journal"))
	assert.False(t, w.matches("/data/wiki.sqlite.bak"))
	assert.False(t, w.matches("/data/other.sqlite"))
}
