// Package gdocs writes transcripts into Google Docs: one document per group
// key, one tab per sub-container key.
package gdocs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/grouping"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/groupmap"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Store is the DocTabStore destination.
type Store struct {
	cfg      config.GoogleDocsConfig
	plan     grouping.Plan
	auth     Authenticator
	service  DocumentService
	endpoint string
	mapPath  string
	groups   *groupmap.Map
	out      io.Writer
	initDone bool
	injected bool
	created  destination.CreatedLog
}

var _ destination.Destination = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithService injects the document service and skips authentication.
func WithService(svc DocumentService) Option {
	return func(s *Store) {
		s.service = svc
		s.injected = true
	}
}

// WithAuthenticator replaces the OAuth token file authenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Store) { s.auth = a }
}

// WithEndpoint points the Docs client at another API root.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) { s.endpoint = endpoint }
}

// WithGroupMapPath overrides <data_dir>/docs_by_week.json.
func WithGroupMapPath(path string) Option {
	return func(s *Store) { s.mapPath = path }
}

// WithOutput sets where the cleanup summary is printed.
func WithOutput(w io.Writer) Option {
	return func(s *Store) { s.out = w }
}

// New builds the grouping strategies from cfg. An unknown strategy name or a
// malformed option fails here, before any document is touched.
func New(cfg config.GoogleDocsConfig, dataDir string, opts ...Option) (*Store, error) {
	useWeekly := cfg.UseWeeklyDocs
	docs, err := grouping.NewDocumentStrategy(grouping.DocumentOptions{
		Mode:          cfg.DocumentGrouping,
		FixedDocID:    cfg.DocID,
		UseWeeklyDocs: &useWeekly,
		DocTitle:      cfg.DocTitle,
		TitleTemplate: cfg.TitleTemplate,
		TagPattern:    cfg.TagPattern,
	})
	if err != nil {
		return nil, goerr.Wrap(errors.Join(destination.ErrConfig, err), "invalid document grouping",
			goerr.V("mode", cfg.DocumentGrouping))
	}
	units, err := grouping.NewUnitStrategy(grouping.UnitOptions{
		Mode:           cfg.TabGrouping,
		DateFormat:     cfg.TabDateFormat,
		TagPattern:     cfg.TagPattern,
		HourRanges:     cfg.TimeOfDayRanges,
		DurationRanges: cfg.DurationRanges,
	})
	if err != nil {
		return nil, goerr.Wrap(errors.Join(destination.ErrConfig, err), "invalid tab grouping",
			goerr.V("mode", cfg.TabGrouping))
	}

	s := &Store{
		cfg:     cfg,
		plan:    grouping.Plan{Documents: docs, Units: units},
		mapPath: filepath.Join(dataDir, groupmap.DefaultFileName),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = NewOAuth(dataDir)
	}
	return s, nil
}

// Kind implements destination.Destination.
func (s *Store) Kind() destination.Kind { return destination.KindGoogleDocs }

// Plan exposes the grouping in effect.
func (s *Store) Plan() grouping.Plan { return s.plan }

// ValidateConfig checks that OAuth client credentials are present.
func (s *Store) ValidateConfig() error {
	if s.injected {
		return nil
	}
	if oauth, ok := s.auth.(*OAuth); ok {
		if _, err := os.Stat(oauth.CredentialsPath); err != nil {
			return goerr.Wrap(destination.ErrConfig, "Google OAuth credentials not found",
				goerr.V("path", oauth.CredentialsPath))
		}
	}
	return nil
}

// Initialize authenticates and loads the group map. Later calls do nothing.
func (s *Store) Initialize(ctx context.Context) error {
	if s.initDone {
		return nil
	}

	if s.service == nil {
		client, err := s.auth.Client(ctx)
		if err != nil {
			return goerr.Wrap(errors.Join(destination.ErrInit, err), "failed to authenticate with Google")
		}
		svc, err := NewGoogleService(ctx, client, s.endpoint)
		if err != nil {
			return goerr.Wrap(errors.Join(destination.ErrInit, err), "failed to create Docs client")
		}
		s.service = svc
	}

	groups, err := groupmap.Load(s.mapPath)
	if err != nil {
		return goerr.Wrap(errors.Join(destination.ErrInit, err), "failed to load document map",
			goerr.V("path", s.mapPath))
	}
	if groups.Format() != groupmap.FormatCanonical && groups.Format() != groupmap.FormatEmpty {
		logging.From(ctx).Info("document map will be upgraded on next write",
			"path", s.mapPath, "format", groups.Format(), "entries", groups.Len())
	}
	s.groups = groups
	s.initDone = true
	return nil
}

// CacheKey implements destination.Destination.
func (s *Store) CacheKey(m destination.Memo) string {
	return s.plan.Locate(m.Timestamp, m.Metadata).CacheKey()
}

// Prepare resolves the memo's document and tab, creating either when missing.
func (s *Store) Prepare(ctx context.Context, m destination.Memo) (destination.Session, error) {
	if !s.initDone {
		return "", goerr.New("destination not initialized")
	}

	loc := s.plan.Locate(m.Timestamp, m.Metadata)
	docID, err := s.document(ctx, loc.GroupKey)
	if err != nil {
		return "", err
	}
	if !loc.HasUnit() {
		return destination.Session(docID), nil
	}

	title := s.plan.Units.Title(loc.UnitKey, m.Timestamp)
	tabID, err := s.tab(ctx, docID, title)
	if err != nil {
		return "", err
	}
	return destination.Session(docID + ":" + tabID), nil
}

func (s *Store) document(ctx context.Context, key string) (string, error) {
	if s.cfg.DocID != "" {
		return s.cfg.DocID, nil
	}
	if id, ok := s.groups.Lookup(key); ok {
		return id, nil
	}

	title := s.plan.Documents.Title(key)
	id, err := s.service.CreateDocument(ctx, title)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create document", goerr.V("group", key))
	}
	if err := s.groups.Put(key, id); err != nil {
		return "", goerr.Wrap(err, "failed to record document", goerr.V("group", key), goerr.V("doc_id", id))
	}

	s.created.Add(destination.Container{ID: id, Title: title, URL: DocumentURL(id)})
	logging.From(ctx).Info("created document", "title", title, "doc_id", id)
	return id, nil
}

// tab finds a tab by exact title, else creates it with a header.
func (s *Store) tab(ctx context.Context, docID, title string) (string, error) {
	tabs, err := s.service.ListTabs(ctx, docID)
	if err != nil {
		return "", err
	}
	for _, t := range tabs {
		if t.Title == title {
			return t.ID, nil
		}
	}

	tabID, err := s.service.CreateTab(ctx, docID, title)
	if err != nil {
		return "", err
	}
	if err := s.service.InsertText(ctx, docID, tabID, 1, TabHeader(title)); err != nil {
		return "", goerr.Wrap(err, "failed to write tab header", goerr.V("tab", title))
	}
	logging.From(ctx).Info("created tab", "title", title, "doc_id", docID, "tab_id", tabID)
	return tabID, nil
}

// Append inserts the entry at the end of the session's tab in one request.
func (s *Store) Append(ctx context.Context, session destination.Session, e destination.Entry) error {
	docID, tabID, _ := strings.Cut(string(session), ":")
	if docID == "" {
		return goerr.Wrap(destination.ErrInvalidSession, "empty document id", goerr.V("session", session))
	}

	index, err := s.service.EndIndex(ctx, docID, tabID)
	if err != nil {
		return err
	}
	return s.service.InsertText(ctx, docID, tabID, index, FormatEntry(e))
}

// Cleanup prints the documents created during the run.
func (s *Store) Cleanup(ctx context.Context) {
	created := s.created.Drain()
	if len(created) == 0 {
		return
	}
	fmt.Fprintln(s.out, "\nGoogle Docs created:")
	for _, c := range created {
		fmt.Fprintf(s.out, "  %s\n    %s\n", c.Title, c.URL)
	}
	logging.From(ctx).Info("documents created", "count", len(created))
}

// Created implements destination.Destination.
func (s *Store) Created() []destination.Container {
	return s.created.Created()
}
