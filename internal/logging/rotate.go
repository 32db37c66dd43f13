package logging

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultPrefix        = "nota-memos"
	DefaultRetentionDays = 30
	// DirName is the log directory inside the data directory.
	DirName    = "logs"
	dateLayout = "2006-01-02"
)

// FilePath is the log file written on day t (UTC) in dir.
func FilePath(dir, prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, prefix+"-"+t.UTC().Format(dateLayout)+".log")
}

// FileConfig configures a RotatingFile.
type FileConfig struct {
	// Dir holds the log files, typically <data_dir>/logs.
	Dir string
	// Prefix produces <prefix>-YYYY-MM-DD.log.
	Prefix string
	// RetentionDays is how long old files are kept.
	RetentionDays int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// RotatingFile is an io.Writer that switches to a new file each UTC day and
// removes files older than the retention period.
type RotatingFile struct {
	config      FileConfig
	mu          sync.Mutex
	file        *os.File
	currentDate string
}

// OpenRotatingFile creates the log directory and opens today's file.
func OpenRotatingFile(config FileConfig) (*RotatingFile, error) {
	if config.Dir == "" {
		return nil, goerr.New("log directory is required")
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create log directory", goerr.V("dir", config.Dir))
	}

	f := &RotatingFile{config: config}
	if err := f.rotateIfNeeded(); err != nil {
		return nil, err
	}
	if err := f.cleanOldLogs(); err != nil {
		return nil, err
	}
	return f, nil
}

// Write appends p to today's file, rotating first when the day changed.
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return f.file.Write(p)
}

// Close closes the current file.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Path returns the path of the file currently written to.
func (f *RotatingFile) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pathFor(f.currentDate)
}

func (f *RotatingFile) pathFor(date string) string {
	return filepath.Join(f.config.Dir, f.config.Prefix+"-"+date+".log")
}

// Dir returns the log directory.
func (f *RotatingFile) Dir() string { return f.config.Dir }

func (f *RotatingFile) rotateIfNeeded() error {
	today := f.config.Now().UTC().Format(dateLayout)
	if f.currentDate == today && f.file != nil {
		return nil
	}

	if f.file != nil {
		_ = f.file.Close()
		f.file = nil
	}

	path := f.pathFor(today)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return goerr.Wrap(err, "failed to open log file", goerr.V("path", path))
	}

	f.file = file
	f.currentDate = today
	return nil
}

func (f *RotatingFile) cleanOldLogs() error {
	entries, err := os.ReadDir(f.config.Dir)
	if err != nil {
		return goerr.Wrap(err, "failed to read log directory", goerr.V("dir", f.config.Dir))
	}

	prefix := f.config.Prefix + "-"
	cutoff := f.config.Now().UTC().AddDate(0, 0, -f.config.RetentionDays)

	var toDelete []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log")
		logDate, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			continue
		}
		if logDate.Before(cutoff) {
			toDelete = append(toDelete, filepath.Join(f.config.Dir, name))
		}
	}

	sort.Strings(toDelete)
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			return goerr.Wrap(err, "failed to remove old log file", goerr.V("path", path))
		}
	}
	return nil
}
