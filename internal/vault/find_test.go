package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// createVault creates a valid vault structure in the given directory.
func createVault(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, MarkerDir), 0755); err != nil {
		t.Fatalf("failed to create .obsidian dir: %v", err)
	}
}

func TestIsVault_ValidVault(t *testing.T) {
	tmpDir := t.TempDir()
	createVault(t, tmpDir)

	if !IsVault(tmpDir) {
		t.Errorf("expected %s to be a vault", tmpDir)
	}
}

func TestIsVault_MissingMarker(t *testing.T) {
	if IsVault(t.TempDir()) {
		t.Errorf("expected directory without .obsidian not to be a vault")
	}
}

func TestIsVault_MarkerIsFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, MarkerDir), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write marker file: %v", err)
	}

	if IsVault(tmpDir) {
		t.Errorf("expected a .obsidian file not to mark a vault")
	}
}

func TestIsVault_NonexistentPath(t *testing.T) {
	if IsVault(filepath.Join(t.TempDir(), "missing")) {
		t.Errorf("expected missing path not to be a vault")
	}
}

func TestFindRootFrom_InVaultRoot(t *testing.T) {
	tmpDir := t.TempDir()
	createVault(t, tmpDir)

	root, err := FindRootFrom(tmpDir)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if root != tmpDir {
		t.Errorf("expected root %q, got %q", tmpDir, root)
	}
}

func TestFindRootFrom_InDeeplyNestedSubdirectory(t *testing.T) {
	tmpDir := t.TempDir()
	createVault(t, tmpDir)
	deepDir := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(deepDir, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	root, err := FindRootFrom(deepDir)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if root != tmpDir {
		t.Errorf("expected root %q, got %q", tmpDir, root)
	}
}

func TestFindRootFrom_NotInVault(t *testing.T) {
	_, err := FindRootFrom(t.TempDir())
	if !errors.Is(err, ErrNotInVault) {
		t.Errorf("expected ErrNotInVault, got: %v", err)
	}
}
