// Package ledger records which recordings have been processed. An item is
// identified by a hash of its path and modification time, so a recording that
// is edited after processing is picked up again.
package ledger

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

const (
	// DBFileName is the ledger database inside the data directory.
	DBFileName = "processed.db"
	// LegacyFileName is the JSON list of hashes imported on first open.
	LegacyFileName = "processed.json"
)

// Status is why an item was marked processed.
type Status string

const (
	StatusOK        Status = "ok"
	StatusCorrupted Status = "corrupted"
	StatusTooSmall  Status = "too_small"
	StatusLegacy    Status = "legacy"
)

// Record is one processed item.
type Record struct {
	Hash        string
	Path        string
	Name        string
	RecordedAt  time.Time
	ProcessedAt time.Time
	Status      Status
	Session     string
	RunID       string
}

// Stats summarizes the ledger.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}

// Ledger is the SQLite backed processed-items record.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source for ProcessedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open opens or creates the ledger in dataDir. On first creation a legacy
// processed.json in the same directory is imported.
func Open(ctx context.Context, dataDir string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("dir", dataDir))
	}

	path := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open ledger", goerr.V("path", path))
	}

	l := &Ledger{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.importLegacy(ctx, filepath.Join(dataDir, LegacyFileName)); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed (
		hash         TEXT PRIMARY KEY,
		path         TEXT NOT NULL DEFAULT '',
		name         TEXT NOT NULL DEFAULT '',
		recorded_at  TEXT,
		processed_at TEXT NOT NULL,
		status       TEXT NOT NULL,
		session      TEXT NOT NULL DEFAULT '',
		run_id       TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_processed_at ON processed(processed_at DESC);

	CREATE TABLE IF NOT EXISTS ledger_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to migrate ledger", goerr.V("path", l.path))
	}
	return nil
}

// importLegacy copies hashes from processed.json once. The import is recorded
// in ledger_meta so a later edit of the JSON file is not re-imported.
func (l *Ledger) importLegacy(ctx context.Context, legacyPath string) error {
	var done string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = 'legacy_import'`).Scan(&done)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return goerr.Wrap(err, "failed to read ledger metadata")
	}

	var hashes []string
	data, err := os.ReadFile(legacyPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return goerr.Wrap(err, "failed to read legacy ledger", goerr.V("path", legacyPath))
	default:
		if err := json.Unmarshal(data, &hashes); err != nil {
			return goerr.Wrap(err, "failed to parse legacy ledger", goerr.V("path", legacyPath))
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin legacy import")
	}
	defer tx.Rollback()

	now := formatTime(l.now())
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed (hash, processed_at, status) VALUES (?, ?, ?)`,
			h, now, string(StatusLegacy)); err != nil {
			return goerr.Wrap(err, "failed to import legacy hash", goerr.V("hash", h))
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES ('legacy_import', ?)`,
		strconv.Itoa(len(hashes))); err != nil {
		return goerr.Wrap(err, "failed to record legacy import")
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit legacy import")
	}
	return nil
}

// Path returns the database file path.
func (l *Ledger) Path() string { return l.path }

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Has reports whether hash has been processed.
func (l *Ledger) Has(ctx context.Context, hash string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM processed WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, goerr.Wrap(err, "failed to query ledger", goerr.V("hash", hash))
	}
	return n > 0, nil
}

// Mark records r as processed. ProcessedAt defaults to now. Marking an
// existing hash replaces its record.
func (l *Ledger) Mark(ctx context.Context, r Record) error {
	if r.Hash == "" {
		return goerr.New("record hash is required", goerr.V("path", r.Path))
	}
	if r.Status == "" {
		r.Status = StatusOK
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = l.now()
	}

	var recorded any
	if !r.RecordedAt.IsZero() {
		recorded = formatTime(r.RecordedAt)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO processed (hash, path, name, recorded_at, processed_at, status, session, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Hash, r.Path, r.Name, recorded, formatTime(r.ProcessedAt), string(r.Status), r.Session, r.RunID)
	if err != nil {
		return goerr.Wrap(err, "failed to mark processed", goerr.V("hash", r.Hash), goerr.V("path", r.Path))
	}
	return nil
}

// Stats counts records by status.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: map[Status]int{}}
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM processed GROUP BY status`)
	if err != nil {
		return stats, goerr.Wrap(err, "failed to query ledger stats")
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, goerr.Wrap(err, "failed to scan ledger stats")
		}
		stats.ByStatus[Status(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, goerr.Wrap(err, "failed to read ledger stats")
	}
	return stats, nil
}

// Last returns the most recently processed non-legacy record, or nil.
func (l *Ledger) Last(ctx context.Context) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT hash, path, name, recorded_at, processed_at, status, session, run_id
		FROM processed WHERE status != ?
		ORDER BY processed_at DESC, rowid DESC LIMIT 1`, string(StatusLegacy))

	var (
		r                 Record
		recorded          sql.NullString
		processed, status string
	)
	err := row.Scan(&r.Hash, &r.Path, &r.Name, &recorded, &processed, &status, &r.Session, &r.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query last record")
	}

	r.Status = Status(status)
	if r.ProcessedAt, err = parseTime(processed); err != nil {
		return nil, err
	}
	if recorded.Valid {
		if r.RecordedAt, err = parseTime(recorded.String); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "invalid timestamp in ledger", goerr.V("value", s))
	}
	return t, nil
}

// Hash identifies a recording by path and modification time. The mtime is
// rendered as fractional seconds in shortest round-trip form, always with a
// decimal point, which keeps hashes stable across versions of the tool.
func Hash(path string, mtime time.Time) string {
	sum := md5.Sum([]byte(path + ":" + formatMtime(mtime)))
	return hex.EncodeToString(sum[:])
}

// HashFile stats path and hashes it.
func HashFile(path string) (string, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to stat recording", goerr.V("path", path))
	}
	return Hash(path, info.ModTime()), info, nil
}

func formatMtime(t time.Time) string {
	secs := float64(t.Unix()) + float64(t.Nanosecond())*1e-9
	s := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
