// Package fileutil resolves the filesystem paths crawltpl's CLI accepts on
// the command line: the template file, the cache directory, and the output
// file. None of these are URLs, so they go through plain shell-style
// expansion rather than anything in the engine's own variable store.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ to the user's home directory, expands environment
// variables, and resolves any other path to a cleaned absolute path.
// A ~user prefix is not expanded; such a path is only cleaned.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	// Expand environment variables first (e.g., $HOME)
	path = os.ExpandEnv(path)

	// Handle tilde expansion
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		if path == "~" {
			return homeDir, nil
		}

		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:]), nil
		}

		// ~user syntax is not supported, return as-is
		// (would require looking up other users' home dirs)
		return filepath.Clean(path), nil
	}

	return filepath.Abs(path)
}
