// Package pidfile keeps the run lock: a PID file in the data directory that
// refuses a second concurrent pass and lets `stop` signal a running watcher.
package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sys/unix"
)

var (
	ErrNoPIDFile       = errors.New("no PID file found")
	ErrInvalidPID      = errors.New("invalid PID in file")
	ErrProcessNotFound = errors.New("process not found")
	// ErrAlreadyRunning is returned by Acquire while another live process
	// holds the lock.
	ErrAlreadyRunning = errors.New("another nota-memos process is running")
)

const (
	// FileName is the lock file kept in the data directory.
	FileName = "nota-memos.pid"
	dirPerm  = 0755
	filePerm = 0644
)

// File is a PID file at a fixed path.
type File struct {
	path string
}

// New returns the lock file inside dataDir.
func New(dataDir string) *File {
	return &File{path: filepath.Join(dataDir, FileName)}
}

// Path returns the PID file location.
func (f *File) Path() string { return f.path }

// Acquire writes the current PID, failing with ErrAlreadyRunning when a live
// process already owns the file. A stale file is replaced. The returned
// release func removes the file.
func (f *File) Acquire() (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerm); err != nil {
		return nil, goerr.Wrap(err, "create PID directory", goerr.V("path", f.path))
	}

	for attempt := 0; attempt < 2; attempt++ {
		fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			_, werr := fh.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := fh.Close()
			if werr = errors.Join(werr, cerr); werr != nil {
				_ = os.Remove(f.path)
				return nil, goerr.Wrap(werr, "write PID file", goerr.V("path", f.path))
			}
			return f.Remove, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, goerr.Wrap(err, "create PID file", goerr.V("path", f.path))
		}

		running, pid, err := f.IsRunning()
		if err != nil && !errors.Is(err, ErrInvalidPID) {
			return nil, err
		}
		if running {
			return nil, goerr.Wrap(ErrAlreadyRunning, "run lock is held", goerr.V("pid", pid), goerr.V("path", f.path))
		}
		if err := f.Remove(); err != nil {
			return nil, err
		}
	}
	return nil, goerr.Wrap(ErrAlreadyRunning, "lost the race for the run lock", goerr.V("path", f.path))
}

// Write creates the PID file with the given process ID, replacing any
// existing one.
func (f *File) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerm); err != nil {
		return goerr.Wrap(err, "create PID directory", goerr.V("path", f.path))
	}
	if err := os.WriteFile(f.path, []byte(strconv.Itoa(pid)+"\n"), filePerm); err != nil {
		return goerr.Wrap(err, "write PID file", goerr.V("path", f.path))
	}
	return nil
}

// Read returns the recorded PID, ErrNoPIDFile, or ErrInvalidPID.
func (f *File) Read() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, goerr.Wrap(err, "read PID file", goerr.V("path", f.path))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrInvalidPID
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "remove PID file", goerr.V("path", f.path))
	}
	return nil
}

// IsRunning checks if the process with the PID in the file is alive.
// No PID file gives (false, 0, nil); a stale one gives (false, pid, nil).
func (f *File) IsRunning() (bool, int, error) {
	pid, err := f.Read()
	if err != nil {
		if errors.Is(err, ErrNoPIDFile) {
			return false, 0, nil
		}
		return false, 0, err
	}

	// Signal 0 probes for existence without delivering anything.
	err = unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, pid, nil
	case errors.Is(err, unix.ESRCH):
		return false, pid, nil
	default:
		return false, pid, goerr.Wrap(err, "check process", goerr.V("pid", pid))
	}
}

// CleanStale removes the PID file if its process is gone. It reports
// whether a file was removed.
func (f *File) CleanStale() (bool, error) {
	running, _, err := f.IsRunning()
	if err != nil && !errors.Is(err, ErrInvalidPID) {
		return false, err
	}
	if running {
		return false, nil
	}
	if _, err := os.Stat(f.path); err != nil {
		return false, nil
	}
	if err := f.Remove(); err != nil {
		return false, err
	}
	return true, nil
}

// Signal sends sig to the recorded process. It returns ErrNoPIDFile when
// nothing is recorded and ErrProcessNotFound when the file is stale.
func (f *File) Signal(sig unix.Signal) (int, error) {
	running, pid, err := f.IsRunning()
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, ErrNoPIDFile
	}
	if !running {
		return pid, goerr.Wrap(ErrProcessNotFound, "stale PID file", goerr.V("pid", pid))
	}
	if err := unix.Kill(pid, sig); err != nil {
		return pid, goerr.Wrap(err, "signal process", goerr.V("pid", pid), goerr.V("signal", sig.String()))
	}
	return pid, nil
}
