package status

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/destination/groupmap"
	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/pidfile"
)

const sampleLog = `time=2026-01-22T10:00:00.000Z level=INFO msg="run started" run_id=01HV memos=3
time=2026-01-22T10:00:01.000Z level=INFO msg="memo processed" name=meeting path=/memos/meeting.m4a session=doc-1:t.1
time=2026-01-22T10:00:05.000Z level=ERROR msg="memo failed" name=broken path=/memos/broken.m4a error="API error: status 500: boom"
time=2026-01-22T10:00:09.500Z level=INFO msg="memo processed" name="Lunch idea" path="/memos/Lunch idea.m4a" session=doc-1:t.1
time=2026-01-22T10:00:10.000Z level=ERROR msg="cleanup warning" error="disk full"
not a log line
`

func TestParseLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nota-memos-2026-01-22.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := ParseLogFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.FilesProcessed != 2 {
		t.Errorf("expected 2 files processed, got %d", stats.FilesProcessed)
	}
	if stats.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failures)
	}
	if stats.Errors != 2 {
		t.Errorf("expected 2 errors, got %d", stats.Errors)
	}

	last := stats.LastProcessed
	if last == nil {
		t.Fatal("expected LastProcessed to be non-nil")
	}
	want, _ := time.Parse(time.RFC3339Nano, "2026-01-22T10:00:09.5Z")
	if !last.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, last.Timestamp)
	}
	if last.Path != "/memos/Lunch idea.m4a" {
		t.Errorf("unexpected path %q", last.Path)
	}
	if last.Session != "doc-1:t.1" {
		t.Errorf("unexpected session %q", last.Session)
	}
}

func TestParseLogFile_Missing(t *testing.T) {
	stats, err := ParseLogFile("/nonexistent/path/nota-memos.log")
	if err != nil {
		t.Fatalf("unexpected error for nonexistent file: %v", err)
	}
	if stats.FilesProcessed != 0 || stats.LastProcessed != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestUnquoteIfNeeded(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"quoted string"`, "quoted string"},
		{`"with \"escape\""`, `with "escape"`},
		{`unquoted`, "unquoted"},
		{`"partial`, `"partial`},
		{`""`, ""},
	}

	for _, tc := range tests {
		if got := unquoteIfNeeded(tc.input); got != tc.expected {
			t.Errorf("unquoteIfNeeded(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"/path/to/file.m4a": "file.m4a",
		"file.m4a":          "file.m4a",
		"/path/to/dir/":     "dir",
	}
	for input, expected := range tests {
		if got := BaseName(input); got != expected {
			t.Errorf("BaseName(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestCollectAndRender(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	now := time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)

	l, err := ledger.Open(ctx, dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	for _, r := range []ledger.Record{
		{Hash: "a", Path: "/memos/a.m4a", Name: "a", ProcessedAt: now.Add(-2 * time.Hour)},
		{Hash: "b", Path: "/memos/b.m4a", Name: "b", ProcessedAt: now.Add(-time.Hour)},
		{Hash: "c", Path: "/memos/c.m4a", Status: ledger.StatusTooSmall, ProcessedAt: now.Add(-3 * time.Hour)},
	} {
		if err := l.Mark(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	mapPath := filepath.Join(dataDir, groupmap.DefaultFileName)
	m, err := groupmap.Load(mapPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Put("2026-01-19", "doc-1"); err != nil {
		t.Fatal(err)
	}

	logDir := filepath.Join(dataDir, logging.DirName)
	os.MkdirAll(logDir, 0755)
	os.WriteFile(TodayLogPath(logDir, now), []byte(sampleLog), 0644)

	lock := pidfile.New(dataDir)
	lock.Write(os.Getpid())

	r, err := Collect(ctx, Sources{Ledger: l, GroupMapPath: mapPath, Lock: lock, LogDir: logDir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if !r.Running || r.PID != os.Getpid() {
		t.Errorf("expected running with own pid, got %v %d", r.Running, r.PID)
	}
	if r.Ledger.Total != 3 || r.Ledger.ByStatus[ledger.StatusOK] != 2 {
		t.Errorf("unexpected ledger stats %+v", r.Ledger)
	}
	if r.Last == nil || r.Last.Hash != "b" {
		t.Errorf("expected last record b, got %+v", r.Last)
	}
	if len(r.Groups) != 1 || r.Groups[0].ID != "doc-1" {
		t.Errorf("unexpected groups %+v", r.Groups)
	}
	if r.Today == nil || r.Today.FilesProcessed != 2 {
		t.Errorf("unexpected today stats %+v", r.Today)
	}

	var buf bytes.Buffer
	r.Render(&buf)
	out := buf.String()
	for _, want := range []string{
		"running (pid",
		"Processed:  3 memos",
		"too_small",
		"Last:       b.m4a, 1 hour ago",
		"2026-01-19 → doc-1",
		"Today:      2 processed, 1 failed, 2 errors logged",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
