package grouping

import (
	"fmt"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/m-mizutani/goerr/v2"
)

// DocumentMode selects how memos are grouped into top-level containers.
type DocumentMode string

const (
	DocumentsWeekly    DocumentMode = "weekly"
	DocumentsMonthly   DocumentMode = "monthly"
	DocumentsQuarterly DocumentMode = "quarterly"
	DocumentsYearly    DocumentMode = "yearly"
	DocumentsByTag     DocumentMode = "tag"
	DocumentsSingle    DocumentMode = "single"
)

// DefaultDocTitle names the container used by single-document grouping.
const DefaultDocTitle = "Voice Memo Transcripts"

// DefaultTitleTemplate is applied to dated and tagged group keys.
const DefaultTitleTemplate = "{key} Voice Memo Transcripts"

// DocumentStrategy maps a memo to a group key and a group key to a title.
type DocumentStrategy interface {
	Mode() DocumentMode
	Key(ts time.Time, meta metadata.AudioMetadata) string
	Title(key string) string
}

// DocumentOptions configures NewDocumentStrategy.
type DocumentOptions struct {
	Mode DocumentMode
	// FixedDocID pins every memo to one existing container.
	FixedDocID string
	// UseWeeklyDocs set to false selects a single container. Nil means unset.
	UseWeeklyDocs *bool
	// DocTitle names the single container.
	DocTitle string
	// TitleTemplate replaces "{key}" with the group label.
	TitleTemplate string
	TagPattern    string
}

// NewDocumentStrategy builds the strategy selected by opts. An empty mode means
// weekly. A fixed document id or an explicit UseWeeklyDocs=false forces single
// grouping whatever the mode says.
func NewDocumentStrategy(opts DocumentOptions) (DocumentStrategy, error) {
	template := opts.TitleTemplate
	if template == "" {
		template = DefaultTitleTemplate
	} else if !strings.Contains(template, "{key}") {
		return nil, goerr.Wrap(ErrInvalidOption, "title template must contain {key}",
			goerr.V("template", template))
	}

	mode := opts.Mode
	if mode == "" {
		mode = DocumentsWeekly
	}
	if opts.FixedDocID != "" || (opts.UseWeeklyDocs != nil && !*opts.UseWeeklyDocs) {
		mode = DocumentsSingle
	}

	switch mode {
	case DocumentsWeekly:
		return datedDocuments{mode: mode, template: template, key: func(ts time.Time) string {
			return Monday(ts).Format(time.DateOnly)
		}}, nil
	case DocumentsMonthly:
		return datedDocuments{mode: mode, template: template, key: func(ts time.Time) string {
			return ts.Format("2006-01")
		}}, nil
	case DocumentsQuarterly:
		return datedDocuments{mode: mode, template: template, key: func(ts time.Time) string {
			return fmt.Sprintf("%d-Q%d", ts.Year(), (int(ts.Month())-1)/3+1)
		}}, nil
	case DocumentsYearly:
		return datedDocuments{mode: mode, template: template, key: func(ts time.Time) string {
			return fmt.Sprintf("%d", ts.Year())
		}}, nil
	case DocumentsByTag:
		m, err := newTagMatcher(opts.TagPattern)
		if err != nil {
			return nil, err
		}
		return taggedDocuments{matcher: m, template: template}, nil
	case DocumentsSingle:
		title := opts.DocTitle
		if title == "" {
			title = DefaultDocTitle
		}
		return singleDocument{title: title}, nil
	default:
		return nil, goerr.Wrap(ErrUnknownStrategy, "unknown document grouping",
			goerr.V("grouping", string(opts.Mode)))
	}
}

type datedDocuments struct {
	mode     DocumentMode
	template string
	key      func(time.Time) string
}

func (d datedDocuments) Mode() DocumentMode { return d.mode }

func (d datedDocuments) Key(ts time.Time, _ metadata.AudioMetadata) string {
	return d.key(ts)
}

func (d datedDocuments) Title(key string) string {
	return strings.ReplaceAll(d.template, "{key}", key)
}

type taggedDocuments struct {
	matcher  tagMatcher
	template string
}

func (taggedDocuments) Mode() DocumentMode { return DocumentsByTag }

func (d taggedDocuments) Key(_ time.Time, meta metadata.AudioMetadata) string {
	return d.matcher.key(meta)
}

func (d taggedDocuments) Title(key string) string {
	return strings.ReplaceAll(d.template, "{key}", tagLabel(key))
}

type singleDocument struct {
	title string
}

func (singleDocument) Mode() DocumentMode { return DocumentsSingle }

func (singleDocument) Key(time.Time, metadata.AudioMetadata) string { return SingleKey }

func (s singleDocument) Title(string) string { return s.title }
