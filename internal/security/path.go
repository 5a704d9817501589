package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths and paths that climb out of their
// directory with "..". Absolute paths are allowed.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ValidateDatabasePath validates a SQLite path. The special in-memory names
// are accepted as is.
func ValidateDatabasePath(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return nil
	}
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return fmt.Errorf("database path points to a directory: %s", path)
	}
	return nil
}
