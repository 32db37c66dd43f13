package gdocs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	docs "google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// DefaultEndpoint is the Google Docs API root.
const DefaultEndpoint = "https://docs.googleapis.com/"

// Tab is a named tab inside a document.
type Tab struct {
	ID    string
	Title string
}

// DocumentService is the remote document store: documents that contain tabs
// that contain text.
type DocumentService interface {
	CreateDocument(ctx context.Context, title string) (string, error)
	ListTabs(ctx context.Context, docID string) ([]Tab, error)
	CreateTab(ctx context.Context, docID, title string) (string, error)
	// EndIndex returns the insertion index at the end of a tab's body. An
	// empty tabID addresses the document's first tab.
	EndIndex(ctx context.Context, docID, tabID string) (int64, error)
	InsertText(ctx context.Context, docID, tabID string, index int64, text string) error
}

// GoogleService implements DocumentService on the Google Docs v1 API.
type GoogleService struct {
	docs     *docs.Service
	client   *http.Client
	endpoint string
}

var _ DocumentService = (*GoogleService)(nil)

// NewGoogleService wraps an authenticated HTTP client. An empty endpoint uses
// DefaultEndpoint.
func NewGoogleService(ctx context.Context, client *http.Client, endpoint string) (*GoogleService, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	svc, err := docs.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create docs service")
	}

	return &GoogleService{docs: svc, client: client, endpoint: endpoint}, nil
}

// CreateDocument creates an empty document and returns its id.
func (s *GoogleService) CreateDocument(ctx context.Context, title string) (string, error) {
	doc, err := s.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to create document", goerr.V("title", title))
	}
	return doc.DocumentId, nil
}

func (s *GoogleService) getWithTabs(ctx context.Context, docID string) (*docs.Document, error) {
	doc, err := s.docs.Documents.Get(docID).IncludeTabsContent(true).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("doc_id", docID))
	}
	return doc, nil
}

// ListTabs returns every tab in the document, nested tabs included.
func (s *GoogleService) ListTabs(ctx context.Context, docID string) ([]Tab, error) {
	doc, err := s.getWithTabs(ctx, docID)
	if err != nil {
		return nil, err
	}

	var tabs []Tab
	walkTabs(doc.Tabs, func(t *docs.Tab) bool {
		if t.TabProperties != nil && t.TabProperties.TabId != "" && t.TabProperties.Title != "" {
			tabs = append(tabs, Tab{ID: t.TabProperties.TabId, Title: t.TabProperties.Title})
		}
		return true
	})
	return tabs, nil
}

// EndIndex is one before the end of the last structural element, or 1 for an
// empty body.
func (s *GoogleService) EndIndex(ctx context.Context, docID, tabID string) (int64, error) {
	doc, err := s.getWithTabs(ctx, docID)
	if err != nil {
		return 0, err
	}

	var target *docs.Tab
	walkTabs(doc.Tabs, func(t *docs.Tab) bool {
		if tabID == "" || (t.TabProperties != nil && t.TabProperties.TabId == tabID) {
			target = t
			return false
		}
		return true
	})
	if target == nil {
		if tabID != "" {
			return 0, goerr.New("tab not found", goerr.V("doc_id", docID), goerr.V("tab_id", tabID))
		}
		return endOfBody(doc.Body), nil
	}
	if target.DocumentTab == nil {
		return 1, nil
	}
	return endOfBody(target.DocumentTab.Body), nil
}

func endOfBody(body *docs.Body) int64 {
	if body == nil || len(body.Content) == 0 {
		return 1
	}
	end := body.Content[len(body.Content)-1].EndIndex - 1
	if end < 1 {
		return 1
	}
	return end
}

func walkTabs(tabs []*docs.Tab, fn func(*docs.Tab) bool) bool {
	for _, t := range tabs {
		if !fn(t) {
			return false
		}
		if !walkTabs(t.ChildTabs, fn) {
			return false
		}
	}
	return true
}

// InsertText inserts text at index in a single batch update.
func (s *GoogleService) InsertText(ctx context.Context, docID, tabID string, index int64, text string) error {
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: index, TabId: tabID},
				Text:     text,
			},
		}},
	}
	if _, err := s.docs.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to insert text",
			goerr.V("doc_id", docID), goerr.V("tab_id", tabID), goerr.V("index", index))
	}
	return nil
}

type addTabReply struct {
	Replies []struct {
		AddDocumentTab *struct {
			TabProperties struct {
				TabID string `json:"tabId"`
			} `json:"tabProperties"`
		} `json:"addDocumentTab"`
	} `json:"replies"`
}

// CreateTab adds a top-level tab. The request is posted directly because the
// generated client does not model addDocumentTab.
func (s *GoogleService) CreateTab(ctx context.Context, docID, title string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"requests": []any{
			map[string]any{
				"addDocumentTab": map[string]any{
					"tabProperties": map[string]any{"title": title},
				},
			},
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode tab request")
	}

	reqURL := s.endpoint + "v1/documents/" + url.PathEscape(docID) + ":batchUpdate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build tab request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create tab", goerr.V("doc_id", docID), goerr.V("title", title))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read tab response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", goerr.New(fmt.Sprintf("API error: status %d", resp.StatusCode),
			goerr.V("doc_id", docID), goerr.V("body", string(data)))
	}

	var reply addTabReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", goerr.Wrap(err, "failed to decode tab response")
	}
	if len(reply.Replies) == 0 || reply.Replies[0].AddDocumentTab == nil || reply.Replies[0].AddDocumentTab.TabProperties.TabID == "" {
		return "", goerr.New("tab response has no tab id", goerr.V("doc_id", docID))
	}
	return reply.Replies[0].AddDocumentTab.TabProperties.TabID, nil
}

// DocumentURL is the browser URL of a document.
func DocumentURL(docID string) string {
	return "https://docs.google.com/document/d/" + docID + "/edit"
}
