// Package grouping decides which container and sub-container a voice memo
// belongs to. Every strategy is a pure function of the recording timestamp and
// its extracted metadata, so the same memo always lands in the same place.
package grouping

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrUnknownStrategy is returned when a configured grouping name is not recognised.
	ErrUnknownStrategy = errors.New("unknown grouping strategy")
	// ErrInvalidOption is returned for malformed strategy options such as a bad tag pattern.
	ErrInvalidOption = errors.New("invalid grouping option")
)

// Fixed keys shared by several strategies.
const (
	SingleKey   = "single"
	UntaggedKey = "untagged"
	UnknownKey  = "unknown"
	NoneKey     = "none"
)

// DefaultTagPattern extracts "project" from a title such as "Ideas #project".
const DefaultTagPattern = `#(\w+)`

const tagKeyPrefix = "tag-"

// Location is where a memo resolves to: the document-level group key and the
// sub-container key inside it.
type Location struct {
	GroupKey string
	UnitKey  string
}

// HasUnit reports whether the location addresses a sub-container.
func (l Location) HasUnit() bool {
	return l.UnitKey != NoneKey
}

// CacheKey combines both keys. Two memos with the same cache key resolve to
// the same container and sub-container.
func (l Location) CacheKey() string {
	if !l.HasUnit() {
		return l.GroupKey
	}
	return l.GroupKey + "|" + l.UnitKey
}

// Plan pairs a document strategy with a sub-container strategy.
type Plan struct {
	Documents DocumentStrategy
	Units     UnitStrategy
}

// Locate resolves a memo to its location.
func (p Plan) Locate(ts time.Time, meta metadata.AudioMetadata) Location {
	return Location{
		GroupKey: p.Documents.Key(ts, meta),
		UnitKey:  p.Units.Key(ts, meta),
	}
}

// Monday returns midnight of the Monday starting ts's week, in ts's location.
func Monday(ts time.Time) time.Time {
	offset := (int(ts.Weekday()) + 6) % 7
	y, m, d := ts.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, ts.Location())
}

// Slug lowercases a range name and joins its words with hyphens.
func Slug(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// tagMatcher extracts the first capture group of a pattern from a memo title.
type tagMatcher struct {
	re *regexp.Regexp
}

func newTagMatcher(pattern string) (tagMatcher, error) {
	if pattern == "" {
		pattern = DefaultTagPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return tagMatcher{}, goerr.Wrap(ErrInvalidOption, "tag pattern does not compile",
			goerr.V("pattern", pattern), goerr.V("cause", err.Error()))
	}
	if re.NumSubexp() < 1 {
		return tagMatcher{}, goerr.Wrap(ErrInvalidOption, "tag pattern needs a capture group",
			goerr.V("pattern", pattern))
	}
	return tagMatcher{re: re}, nil
}

func (m tagMatcher) key(meta metadata.AudioMetadata) string {
	if meta.Title == "" {
		return UntaggedKey
	}
	match := m.re.FindStringSubmatch(meta.Title)
	if match == nil || match[1] == "" {
		return UntaggedKey
	}
	return tagKeyPrefix + match[1]
}

// tagLabel renders a tag key for display: "tag-project" becomes "#project".
func tagLabel(key string) string {
	if tag, ok := strings.CutPrefix(key, tagKeyPrefix); ok {
		return "#" + tag
	}
	return "Untagged"
}
