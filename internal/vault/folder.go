package vault

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// EnsureFolder returns the folder inside root that transcripts are written to,
// creating it when missing. An existing folder whose name differs only in case
// is reused, so "voice memos" satisfies "Voice Memos". Nested folders are
// resolved one level at a time.
func EnsureFolder(root, folder string) (string, error) {
	current := root
	for _, part := range strings.Split(filepath.ToSlash(folder), "/") {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			return "", goerr.New("folder must stay inside the vault", goerr.V("folder", folder))
		}

		existing, err := getExistingFolders(current)
		if err != nil {
			return "", goerr.Wrap(err, "failed to list vault folder", goerr.V("path", current))
		}
		if match, ok := folderExistsCaseInsensitive(part, existing); ok {
			current = filepath.Join(current, match)
			continue
		}

		current = filepath.Join(current, part)
		if err := os.MkdirAll(current, 0755); err != nil {
			return "", goerr.Wrap(err, "failed to create vault folder", goerr.V("path", current))
		}
	}
	return current, nil
}

// getExistingFolders returns a list of existing folder names in the given path
func getExistingFolders(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// folderExistsCaseInsensitive returns the existing folder matching name,
// preferring an exact match.
func folderExistsCaseInsensitive(name string, existingFolders []string) (string, bool) {
	found := ""
	for _, existing := range existingFolders {
		if existing == name {
			return existing, true
		}
		if found == "" && strings.EqualFold(existing, name) {
			found = existing
		}
	}
	return found, found != ""
}
