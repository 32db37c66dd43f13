package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"
)

// Near max PID on most Linux systems, almost certainly not in use.
const stalePID = 4194300

func writeRaw(t *testing.T, f *File, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(f.Path()), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(f.Path(), []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	f := New(dir)
	if f.Path() != filepath.Join(dir, "nota-memos.pid") {
		t.Errorf("unexpected path: %s", f.Path())
	}
}

func TestWriteAndRead(t *testing.T) {
	f := New(t.TempDir())

	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	pid, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("expected PID 12345, got %d", pid)
	}

	info, err := os.Stat(f.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected permissions 644, got %o", info.Mode().Perm())
	}
}

func TestReadNoPIDFile(t *testing.T) {
	_, err := New(t.TempDir()).Read()
	if err != ErrNoPIDFile {
		t.Errorf("expected ErrNoPIDFile, got: %v", err)
	}
}

func TestReadInvalidPID(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "-1\n", ""} {
		f := New(t.TempDir())
		writeRaw(t, f, content)

		if _, err := f.Read(); err != ErrInvalidPID {
			t.Errorf("%q: expected ErrInvalidPID, got: %v", content, err)
		}
	}
}

func TestRemove(t *testing.T) {
	f := New(t.TempDir())
	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}

	// A second remove is a no-op.
	if err := f.Remove(); err != nil {
		t.Errorf("expected no error removing nonexistent file, got: %v", err)
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	f := New(dir)

	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("expected data directory to be created")
	}
}

func TestIsRunningWithCurrentProcess(t *testing.T) {
	f := New(t.TempDir())
	f.Write(os.Getpid())

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !running {
		t.Error("expected process to be running")
	}
	if pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestIsRunningWithNoPIDFile(t *testing.T) {
	running, pid, err := New(t.TempDir()).IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running || pid != 0 {
		t.Errorf("expected (false, 0), got (%v, %d)", running, pid)
	}
}

func TestIsRunningWithStalePID(t *testing.T) {
	f := New(t.TempDir())
	writeRaw(t, f, strconv.Itoa(stalePID)+"\n")

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}
	if pid != stalePID {
		t.Errorf("expected PID %d, got %d", stalePID, pid)
	}
}

func TestCleanStaleRemovesFile(t *testing.T) {
	f := New(t.TempDir())
	writeRaw(t, f, strconv.Itoa(stalePID)+"\n")

	removed, err := f.CleanStale()
	if err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if !removed {
		t.Error("expected stale PID file to be removed")
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}
}

func TestCleanStaleDoesNotRemoveRunning(t *testing.T) {
	f := New(t.TempDir())
	f.Write(os.Getpid())

	removed, err := f.CleanStale()
	if err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if removed {
		t.Error("expected running process PID file to not be removed")
	}
	if _, err := os.Stat(f.Path()); err != nil {
		t.Error("expected PID file to still exist")
	}
}

func TestAcquireAndRelease(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "data"))

	release, err := f.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pid, err := f.Read()
	if err != nil || pid != os.Getpid() {
		t.Fatalf("expected own PID in lock file, got %d (%v)", pid, err)
	}

	if _, err := f.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning while held, got: %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	release, err = f.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	release()
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	f := New(t.TempDir())
	writeRaw(t, f, strconv.Itoa(stalePID)+"\n")
	if running, _, _ := f.IsRunning(); running {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}

	release, err := f.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	if pid, _ := f.Read(); pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestAcquireReplacesGarbage(t *testing.T) {
	f := New(t.TempDir())
	writeRaw(t, f, "garbage")

	release, err := f.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	release()
}

func TestSignal(t *testing.T) {
	f := New(t.TempDir())
	if _, err := f.Signal(unix.Signal(0)); !errors.Is(err, ErrNoPIDFile) {
		t.Errorf("expected ErrNoPIDFile, got: %v", err)
	}

	writeRaw(t, f, strconv.Itoa(stalePID)+"\n")
	if running, _, _ := f.IsRunning(); !running {
		if _, err := f.Signal(unix.Signal(0)); !errors.Is(err, ErrProcessNotFound) {
			t.Errorf("expected ErrProcessNotFound, got: %v", err)
		}
	}

	f.Write(os.Getpid())
	pid, err := f.Signal(unix.Signal(0))
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}
}
