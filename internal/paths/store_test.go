package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStorePath_Empty(t *testing.T) {
	require.Equal(t, "sessions.db", ResolveStorePath(""))
}

func TestResolveStorePath_ExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, filepath.Join(dir, "sessions.db"), ResolveStorePath(dir))
}

func TestResolveStorePath_FilePath(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "custom.db")
	require.Equal(t, dbPath, ResolveStorePath(dbPath))
}

func TestResolveStorePath_NonexistentPathKeptAsFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "sessions.db")
	require.Equal(t, dbPath, ResolveStorePath(dbPath))
}

func TestResolveStorePath_TildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	resolved := ResolveStorePath("~/some-missing-dir/sessions.db")
	require.Equal(t, filepath.Join(home, "some-missing-dir", "sessions.db"), resolved)
}

func TestResolveStorePath_CleansPath(t *testing.T) {
	require.Equal(t, "/data/sessions.db", ResolveStorePath("/data//./sessions.db"))
}
