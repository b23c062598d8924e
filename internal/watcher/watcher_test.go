package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sessionflow/internal/watcher"
)

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "sessions.db")
	err := os.WriteFile(storePath, []byte("test"), 0o644)
	require.NoError(t, err, "failed to create test file")

	w, err := watcher.New(watcher.Config{
		StorePath:   storePath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Rapid writes should coalesce into single notification
	for i := 0; i < 10; i++ {
		err := os.WriteFile(storePath, []byte(fmt.Sprintf("test%d", i)), 0o644)
		require.NoError(t, err, "failed to write file")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
		// Expected
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	// No second notification should come quickly
	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
		// Expected - no second notification
	}
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "sessions.db")
	otherPath := filepath.Join(dir, "other.txt")
	err := os.WriteFile(storePath, []byte("db"), 0o644)
	require.NoError(t, err, "failed to create store file")
	// Pre-create the other file so writes to it are just Write events
	err = os.WriteFile(otherPath, []byte("initial"), 0o644)
	require.NoError(t, err, "failed to create other file")

	w, err := watcher.New(watcher.Config{
		StorePath:   storePath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	err = os.WriteFile(otherPath, []byte("other content"), 0o644)
	require.NoError(t, err, "failed to write other file")

	select {
	case <-onChange:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(100 * time.Millisecond):
		// Expected - no notification for unrelated file
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "sessions.db")
	err := os.WriteFile(storePath, []byte("test"), 0o644)
	require.NoError(t, err, "failed to create test file")

	w, err := watcher.New(watcher.Config{
		StorePath:   storePath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")

	_, err = w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Stop should not hang or panic
	done := make(chan struct{})
	go func() {
		err := w.Stop()
		assert.NoError(t, err, "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
		// Expected - stop completed successfully
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestWatcher_WatchesWALFile(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "sessions.db")
	walPath := filepath.Join(dir, "sessions.db-wal")

	err := os.WriteFile(storePath, []byte("db"), 0o644)
	require.NoError(t, err, "failed to create store file")

	w, err := watcher.New(watcher.Config{
		StorePath:   storePath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Write to WAL file should trigger notification
	err = os.WriteFile(walPath, []byte("wal data"), 0o644)
	require.NoError(t, err, "failed to write WAL file")

	select {
	case <-onChange:
		// Expected - WAL writes should trigger notification
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification for WAL file write")
	}
}

func TestDefaultConfig(t *testing.T) {
	storePath := "/test/sessions.db"
	cfg := watcher.DefaultConfig(storePath)

	assert.Equal(t, storePath, cfg.StorePath)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDur)
}
