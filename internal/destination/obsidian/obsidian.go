// Package obsidian writes transcripts as dated markdown notes in an Obsidian
// vault.
package obsidian

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/grouping"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/vault"
	"github.com/m-mizutani/goerr/v2"
	"github.com/ncruces/go-strftime"
)

// Organize values.
const (
	OrganizeDaily   = "daily"
	OrganizeWeekly  = "weekly"
	OrganizeMonthly = "monthly"
	OrganizeByTag   = "tag"
)

// Store is the DatedFileStore destination: one note per day, week, month or
// tag inside a vault folder.
type Store struct {
	cfg      config.ObsidianConfig
	docs     grouping.DocumentStrategy
	folder   string
	out      io.Writer
	initDone bool
	created  destination.CreatedLog
}

var _ destination.Destination = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithOutput sets where the cleanup summary is printed.
func WithOutput(w io.Writer) Option {
	return func(s *Store) { s.out = w }
}

// New checks the organization mode and tag pattern.
func New(cfg config.ObsidianConfig, opts ...Option) (*Store, error) {
	if cfg.OrganizeBy == "" {
		cfg.OrganizeBy = OrganizeDaily
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = config.DefaultObsidianDateFormat
	}

	var mode grouping.DocumentMode
	switch cfg.OrganizeBy {
	case OrganizeDaily, OrganizeWeekly:
		mode = grouping.DocumentsWeekly
	case OrganizeMonthly:
		mode = grouping.DocumentsMonthly
	case OrganizeByTag:
		mode = grouping.DocumentsByTag
	default:
		return nil, goerr.Wrap(errors.Join(destination.ErrConfig, grouping.ErrUnknownStrategy),
			"unknown organize_by", goerr.V("organize_by", cfg.OrganizeBy))
	}
	docs, err := grouping.NewDocumentStrategy(grouping.DocumentOptions{
		Mode:          mode,
		TitleTemplate: "{key}",
		TagPattern:    cfg.TagPattern,
	})
	if err != nil {
		return nil, goerr.Wrap(errors.Join(destination.ErrConfig, err), "invalid obsidian grouping")
	}

	s := &Store{cfg: cfg, docs: docs, out: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Kind implements destination.Destination.
func (s *Store) Kind() destination.Kind { return destination.KindObsidian }

// ValidateConfig checks that vault_path is an Obsidian vault.
func (s *Store) ValidateConfig() error {
	if s.cfg.VaultPath == "" {
		return goerr.Wrap(destination.ErrConfig, "vault_path is required")
	}
	info, err := os.Stat(s.cfg.VaultPath)
	if err != nil {
		return goerr.Wrap(destination.ErrConfig, "vault path does not exist", goerr.V("vault_path", s.cfg.VaultPath))
	}
	if !info.IsDir() {
		return goerr.Wrap(destination.ErrConfig, "vault path is not a directory", goerr.V("vault_path", s.cfg.VaultPath))
	}
	if !vault.IsVault(s.cfg.VaultPath) {
		if root, err := vault.FindRootFrom(s.cfg.VaultPath); err == nil {
			return goerr.Wrap(destination.ErrConfig, "vault_path is inside a vault, not at its root",
				goerr.V("vault_path", s.cfg.VaultPath), goerr.V("vault_root", root))
		}
		return goerr.Wrap(destination.ErrConfig, "not an Obsidian vault (missing .obsidian directory)",
			goerr.V("vault_path", s.cfg.VaultPath))
	}
	return nil
}

// Initialize validates the vault and creates the transcript folder.
func (s *Store) Initialize(ctx context.Context) error {
	if s.initDone {
		return nil
	}
	if err := s.ValidateConfig(); err != nil {
		return goerr.Wrap(errors.Join(destination.ErrInit, err), "obsidian vault unusable")
	}

	folder, err := vault.EnsureFolder(s.cfg.VaultPath, s.cfg.Folder)
	if err != nil {
		return goerr.Wrap(errors.Join(destination.ErrInit, err), "failed to prepare vault folder")
	}
	s.folder = folder
	s.initDone = true
	logging.From(ctx).Debug("obsidian folder ready", "folder", folder)
	return nil
}

// Folder is the directory notes are written to, once initialized.
func (s *Store) Folder() string { return s.folder }

// CacheKey is the date, Monday, month or tag the memo's note is named after.
func (s *Store) CacheKey(m destination.Memo) string {
	switch s.cfg.OrganizeBy {
	case OrganizeDaily:
		return m.Timestamp.Format(time.DateOnly)
	default:
		return s.docs.Key(m.Timestamp, m.Metadata)
	}
}

// note describes the file a memo belongs to.
type note struct {
	name   string
	header string
	front  frontmatterFields
}

func (s *Store) noteFor(m destination.Memo) note {
	ts := m.Timestamp
	switch s.cfg.OrganizeBy {
	case OrganizeWeekly:
		monday := grouping.Monday(ts)
		year, week := monday.ISOWeek()
		return note{
			name:   strftime.Format(s.cfg.DateFormat, monday) + " Week.md",
			header: "# Voice Memos - Week of " + monday.Format("January 02, 2006"),
			front:  frontmatterFields{Date: monday, Week: fmt.Sprintf("%d-W%02d", year, week)},
		}
	case OrganizeMonthly:
		first := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location())
		return note{
			name:   first.Format("2006-01") + " Month.md",
			header: "# Voice Memos - " + first.Format("January 2006"),
			front:  frontmatterFields{Date: first},
		}
	case OrganizeByTag:
		label := s.docs.Title(s.docs.Key(ts, m.Metadata))
		return note{
			name:   label + ".md",
			header: "# Voice Memos - " + label,
			front:  frontmatterFields{Date: ts},
		}
	default:
		return note{
			name:   strftime.Format(s.cfg.DateFormat, ts) + ".md",
			header: "# Voice Memos - " + ts.Format("January 02, 2006"),
			front:  frontmatterFields{Date: ts},
		}
	}
}

// Prepare returns the note path, creating the note with frontmatter and a
// header when it does not exist yet.
func (s *Store) Prepare(ctx context.Context, m destination.Memo) (destination.Session, error) {
	if !s.initDone {
		return "", goerr.New("destination not initialized")
	}

	n := s.noteFor(m)
	path := filepath.Join(s.folder, sanitizeFileName(n.name))
	if _, err := os.Stat(path); err == nil {
		return destination.Session(path), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", goerr.Wrap(err, "failed to stat note", goerr.V("path", path))
	}

	var content string
	if s.cfg.IncludeFrontmatter {
		n.front.Tags = s.cfg.IncludeTags
		front, err := buildFrontmatter(n.front)
		if err != nil {
			return "", err
		}
		content = front
	}
	content += n.header + "\n\n"

	if err := writeAtomic(path, content); err != nil {
		return "", err
	}
	s.created.Add(destination.Container{ID: path, Title: strings.TrimSuffix(filepath.Base(path), ".md"), URL: path})
	logging.From(ctx).Info("created note", "path", path)
	return destination.Session(path), nil
}

// Append adds the entry and bumps memo_count in a single atomic rewrite.
func (s *Store) Append(ctx context.Context, session destination.Session, e destination.Entry) error {
	if !s.initDone {
		return goerr.New("destination not initialized")
	}
	path := string(session)
	if !s.inFolder(path) {
		return goerr.Wrap(destination.ErrInvalidSession, "note path outside the vault folder", goerr.V("session", session))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read note", goerr.V("path", path))
	}

	content := string(data)
	if s.cfg.IncludeFrontmatter {
		content = incrementMemoCount(content)
	}
	content += formatEntry(e, s.cfg.IncludeMetadata)

	if err := writeAtomic(path, content); err != nil {
		return err
	}
	logging.From(ctx).Debug("appended to note", "path", path, "memo", e.Name)
	return nil
}

// inFolder reports whether path names a file below the notes folder.
func (s *Store) inFolder(path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(s.folder), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Cleanup prints where the notes are.
func (s *Store) Cleanup(_ context.Context) {
	s.created.Drain()
	if s.folder == "" {
		return
	}
	fmt.Fprintln(s.out, "\n📝 Transcripts saved to Obsidian vault:")
	fmt.Fprintf(s.out, "  %s\n", s.folder)
}

// Created implements destination.Destination.
func (s *Store) Created() []destination.Container {
	return s.created.Created()
}

// sanitizeFileName removes path separators from a generated note name.
func sanitizeFileName(name string) string {
	return strings.NewReplacer("/", "-", `\`, "-", ":", "-").Replace(name)
}

// writeAtomic replaces path with content via a temporary file in the same
// directory.
func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nota-memos-*.tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp note", goerr.V("path", path))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write temp note", goerr.V("path", path))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to sync temp note", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp note", goerr.V("path", path))
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return goerr.Wrap(err, "failed to set note permissions", goerr.V("path", path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return goerr.Wrap(err, "failed to replace note", goerr.V("path", path))
	}
	return nil
}
