// Package vault locates Obsidian vaults and the folders transcripts go in.
package vault

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotInVault is returned when a path is not inside an Obsidian vault.
var ErrNotInVault = errors.New("not in an Obsidian vault")

// MarkerDir is the directory Obsidian keeps at a vault root.
const MarkerDir = ".obsidian"

// IsVault reports whether path is a vault root: a directory holding a
// .obsidian directory.
func IsVault(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	marker, err := os.Stat(filepath.Join(path, MarkerDir))
	if err != nil || !marker.IsDir() {
		return false
	}
	return true
}

// FindRootFrom walks up from startPath to the nearest vault root.
// Returns ErrNotInVault if no vault is found.
func FindRootFrom(startPath string) (string, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", err
	}

	current := absPath
	for {
		if IsVault(current) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNotInVault
		}
		current = parent
	}
}
