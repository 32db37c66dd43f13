package gdocs

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	docs "google.golang.org/api/docs/v1"
)

// File names kept in the data directory.
const (
	CredentialsFileName = "credentials.json"
	TokenFileName       = "token.json"
)

// ErrNotAuthorized is returned when no saved token exists yet.
var ErrNotAuthorized = errors.New("not authorized with Google (run: nota-memos auth google)")

// Authenticator yields an HTTP client carrying credentials for the Docs API.
type Authenticator interface {
	Client(ctx context.Context) (*http.Client, error)
}

// OAuth authenticates as the user with an installed-app OAuth client. The
// client secret lives in credentials.json and the user token in token.json;
// refreshed tokens are written back to token.json.
type OAuth struct {
	CredentialsPath string
	TokenPath       string
	RedirectURL     string
}

var _ Authenticator = (*OAuth)(nil)

// NewOAuth uses the standard file names inside dataDir.
func NewOAuth(dataDir string) *OAuth {
	return &OAuth{
		CredentialsPath: filepath.Join(dataDir, CredentialsFileName),
		TokenPath:       filepath.Join(dataDir, TokenFileName),
		RedirectURL:     "http://localhost",
	}
}

// Config loads the OAuth client configuration.
func (a *OAuth) Config() (*oauth2.Config, error) {
	data, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read Google credentials", goerr.V("path", a.CredentialsPath))
	}
	cfg, err := google.ConfigFromJSON(data, docs.DocumentsScope)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse Google credentials", goerr.V("path", a.CredentialsPath))
	}
	if a.RedirectURL != "" {
		cfg.RedirectURL = a.RedirectURL
	}
	return cfg, nil
}

// AuthCodeURL is the consent page the user visits to obtain a code.
func (a *OAuth) AuthCodeURL(state string) (string, error) {
	cfg, err := a.Config()
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token and saves it.
func (a *OAuth) Exchange(ctx context.Context, code string) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return goerr.Wrap(err, "failed to exchange authorization code")
	}
	return saveToken(a.TokenPath, tok)
}

// Client returns an HTTP client that refreshes and persists the saved token.
func (a *OAuth) Client(ctx context.Context) (*http.Client, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(a.TokenPath)
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		base: cfg.TokenSource(ctx, tok),
		path: a.TokenPath,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// persistingSource saves every newly issued token.
type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		if err := saveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrNotAuthorized, "no saved token", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read token", goerr.V("path", path))
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token", goerr.V("path", path))
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return goerr.Wrap(err, "failed to create token directory", goerr.V("path", path))
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to save token", goerr.V("path", path))
	}
	return nil
}
