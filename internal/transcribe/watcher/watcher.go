// Package watcher reports recordings that appear in the voice memos
// directory using inotify.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sys/unix"
)

// FileEvent represents a detected file.
type FileEvent struct {
	Path      string
	Size      int64
	Timestamp time.Time
}

// FileWatcher detects new files in a directory.
type FileWatcher interface {
	Watch(ctx context.Context, dir string, patterns []string) (<-chan FileEvent, error)
	Stop() error
}

const pollInterval = 10 * time.Millisecond

// InotifyWatcher implements FileWatcher with IN_CLOSE_WRITE and IN_MOVED_TO
// on a single directory.
type InotifyWatcher struct {
	fd       int
	wd       int
	patterns []string
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewInotifyWatcher creates a new inotify-based file watcher.
func NewInotifyWatcher() (*InotifyWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, goerr.Wrap(err, "inotify init")
	}
	return &InotifyWatcher{fd: fd, stopCh: make(chan struct{})}, nil
}

// Watch starts watching dir. Patterns are doublestar globs matched against
// the file name; an empty list matches everything.
func (w *InotifyWatcher) Watch(ctx context.Context, dir string, patterns []string) (<-chan FileEvent, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, goerr.New("invalid watch pattern", goerr.V("pattern", p))
		}
	}

	wd, err := unix.InotifyAddWatch(w.fd, dir, unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO)
	if err != nil {
		return nil, goerr.Wrap(err, "inotify add watch", goerr.V("dir", dir))
	}
	w.wd = wd
	w.patterns = patterns
	w.done = make(chan struct{})

	events := make(chan FileEvent, 100)
	go w.readEvents(ctx, dir, events)

	logging.From(ctx).Debug("watching directory", "dir", dir, "patterns", patterns)
	return events, nil
}

// Stop stops the watcher and releases resources. It is safe to call twice.
func (w *InotifyWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.done != nil {
			<-w.done
		}
		if w.wd != 0 {
			_, _ = unix.InotifyRmWatch(w.fd, uint32(w.wd))
		}
		err = unix.Close(w.fd)
	})
	return err
}

func (w *InotifyWatcher) readEvents(ctx context.Context, dir string, events chan<- FileEvent) {
	defer close(w.done)
	defer close(events)

	logger := logging.From(ctx)
	buf := make([]byte, 16*1024)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				time.Sleep(pollInterval)
				continue
			}
			logger.Error("inotify read failed", "error", err)
			return
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := int(event.Len)
			start := offset + unix.SizeofInotifyEvent
			offset = start + nameLen

			if event.Mask&unix.IN_Q_OVERFLOW != 0 {
				logger.Warn("inotify queue overflowed; next run will rescan")
				continue
			}
			if nameLen == 0 || event.Mask&unix.IN_ISDIR != 0 {
				continue
			}

			name := strings.TrimRight(string(buf[start:start+nameLen]), "\x00")
			if !w.matches(name) {
				continue
			}

			fullPath := filepath.Join(dir, name)
			info, err := os.Stat(fullPath)
			if err != nil {
				continue
			}

			select {
			case events <- FileEvent{Path: fullPath, Size: info.Size(), Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *InotifyWatcher) matches(name string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	for _, pattern := range w.patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
