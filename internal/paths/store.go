// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// storeFileName is the default database file name inside a store directory.
const storeFileName = "sessions.db"

// ResolveStorePath resolves the sessions database path from user input.
// It accepts either a database file or a directory and normalizes to the
// file path, expanding a leading "~".
//
// Input normalization:
//   - ""                      -> "sessions.db"
//   - "~/notes"               -> "/home/user/notes/sessions.db" (if notes is a dir)
//   - "/data/sessionflow"     -> "/data/sessionflow/sessions.db" (existing dir)
//   - "/data/app/sessions.db" -> "/data/app/sessions.db"
//
// Paths that don't exist yet are treated as file paths; the store creates
// parent directories on open.
func ResolveStorePath(path string) string {
	if path == "" {
		return storeFileName
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	path = filepath.Clean(path)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, storeFileName)
	}
	return path
}
