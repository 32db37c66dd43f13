// Package status gathers what the status command prints: the processed
// ledger, the group→container map, the run lock and today's log activity.
package status

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/destination/groupmap"
	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/pidfile"
	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
)

// Log messages the parser recognises. The orchestrator logs with these.
const (
	MsgProcessed = "memo processed"
	MsgFailed    = "memo failed"
)

// Stats holds counts parsed from one day's log file.
type Stats struct {
	FilesProcessed int
	Failures       int
	Errors         int
	LastProcessed  *ProcessedFile
}

// ProcessedFile is the last MsgProcessed record in a log file.
type ProcessedFile struct {
	Timestamp time.Time
	Path      string
	Session   string
}

var (
	linePattern = regexp.MustCompile(`^time=(\S+) level=(\w+) msg=("(?:[^"\\]|\\.)*"|\S+)(.*)$`)
	attrPattern = regexp.MustCompile(`(?:^| )(path|session)=("(?:[^"\\]|\\.)*"|\S+)`)
)

// TodayLogPath returns today's log file in logDir.
func TodayLogPath(logDir string, now time.Time) string {
	return logging.FilePath(logDir, logging.DefaultPrefix, now)
}

// ParseLogFile reads a text-handler log file. A missing file yields empty
// stats.
func ParseLogFile(path string) (*Stats, error) {
	stats := &Stats{}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, goerr.Wrap(err, "open log file", goerr.V("path", path))
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := linePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		level, msg, rest := m[2], unquoteIfNeeded(m[3]), m[4]

		if level == "ERROR" {
			stats.Errors++
		}
		switch msg {
		case MsgFailed:
			stats.Failures++
		case MsgProcessed:
			stats.FilesProcessed++
			ts, err := time.Parse(time.RFC3339Nano, m[1])
			if err != nil {
				continue
			}
			pf := &ProcessedFile{Timestamp: ts}
			for _, a := range attrPattern.FindAllStringSubmatch(rest, -1) {
				switch a[1] {
				case "path":
					pf.Path = unquoteIfNeeded(a[2])
				case "session":
					pf.Session = unquoteIfNeeded(a[2])
				}
			}
			stats.LastProcessed = pf
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "scan log file", goerr.V("path", path))
	}
	return stats, nil
}

// unquoteIfNeeded undoes slog's quoting of values with spaces or symbols.
func unquoteIfNeeded(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// Sources are where Collect reads from. Ledger and Lock are optional.
type Sources struct {
	Ledger       *ledger.Ledger
	GroupMapPath string
	Lock         *pidfile.File
	LogDir       string
	Now          func() time.Time
}

// Report is everything the status command shows.
type Report struct {
	Running     bool
	PID         int
	LedgerPath  string
	Ledger      ledger.Stats
	Last        *ledger.Record
	GroupMap    string
	MapFormat   groupmap.Format
	Groups      []groupmap.Entry
	Today       *Stats
	GeneratedAt time.Time
}

// Collect builds a Report.
func Collect(ctx context.Context, src Sources) (*Report, error) {
	now := time.Now
	if src.Now != nil {
		now = src.Now
	}
	r := &Report{GeneratedAt: now()}

	if src.Lock != nil {
		running, pid, err := src.Lock.IsRunning()
		if err != nil {
			logging.From(ctx).Warn("cannot read run lock", "error", err)
		}
		r.Running, r.PID = running, pid
	}

	if src.Ledger != nil {
		stats, err := src.Ledger.Stats(ctx)
		if err != nil {
			return nil, err
		}
		last, err := src.Ledger.Last(ctx)
		if err != nil {
			return nil, err
		}
		r.LedgerPath, r.Ledger, r.Last = src.Ledger.Path(), stats, last
	}

	if src.GroupMapPath != "" {
		m, err := groupmap.Load(src.GroupMapPath)
		if err != nil {
			return nil, err
		}
		r.GroupMap, r.MapFormat, r.Groups = src.GroupMapPath, m.Format(), m.Entries()
	}

	if src.LogDir != "" {
		today, err := ParseLogFile(TodayLogPath(src.LogDir, r.GeneratedAt))
		if err != nil {
			return nil, err
		}
		r.Today = today
	}
	return r, nil
}

// Render writes the report for humans.
func (r *Report) Render(w io.Writer) {
	if r.Running {
		fmt.Fprintf(w, "Watcher:    running (pid %d)\n", r.PID)
	} else {
		fmt.Fprintln(w, "Watcher:    not running")
	}

	if r.LedgerPath != "" {
		fmt.Fprintf(w, "Processed:  %s memos (%s)\n", humanize.Comma(int64(r.Ledger.Total)), r.LedgerPath)
		statuses := make([]string, 0, len(r.Ledger.ByStatus))
		for s := range r.Ledger.ByStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "  %-10s %s\n", s, humanize.Comma(int64(r.Ledger.ByStatus[ledger.Status(s)])))
		}
		if r.Last != nil {
			fmt.Fprintf(w, "Last:       %s, %s\n", BaseName(r.Last.Path), humanize.RelTime(r.Last.ProcessedAt, r.GeneratedAt, "ago", "from now"))
		}
	}

	if r.GroupMap != "" {
		fmt.Fprintf(w, "Containers: %d (%s, %s format)\n", len(r.Groups), r.GroupMap, r.MapFormat)
		for _, e := range r.Groups {
			fmt.Fprintf(w, "  %s → %s\n", e.Key, e.ID)
		}
	}

	if r.Today != nil {
		fmt.Fprintf(w, "Today:      %d processed, %d failed, %d errors logged\n",
			r.Today.FilesProcessed, r.Today.Failures, r.Today.Errors)
		if r.Today.LastProcessed != nil {
			fmt.Fprintf(w, "  last at %s: %s\n", FormatTimestamp(r.Today.LastProcessed.Timestamp), BaseName(r.Today.LastProcessed.Path))
		}
	}
}

// FormatTimestamp formats a timestamp for display.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05")
}

// BaseName returns just the filename from a path.
func BaseName(path string) string {
	return filepath.Base(strings.TrimSuffix(path, "/"))
}
