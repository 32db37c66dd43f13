// Package destination defines where transcripts are written. A Destination
// resolves each memo to a container (and optionally a sub-container) and
// appends formatted entries to it.
package destination

import (
	"context"
	"errors"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
)

var (
	// ErrConfig marks invalid or incomplete destination configuration.
	ErrConfig = errors.New("invalid destination configuration")
	// ErrInit marks a failure to set up the backing store.
	ErrInit = errors.New("destination initialization failed")
	// ErrUnknownKind is returned for an unrecognised destination type.
	ErrUnknownKind = errors.New("unknown destination type")
	// ErrInvalidSession is returned when a session id cannot be decoded.
	ErrInvalidSession = errors.New("invalid session id")
)

// Kind names a destination implementation.
type Kind string

const (
	KindGoogleDocs Kind = "google_docs"
	KindObsidian   Kind = "obsidian"
)

// RecordedLayout formats Entry.Recorded.
const RecordedLayout = "2006-01-02 15:04:05"

// Memo is one recording to be written.
type Memo struct {
	Path      string
	Name      string
	Timestamp time.Time
	Metadata  metadata.AudioMetadata
}

// Entry is a transcribed memo ready to append.
type Entry struct {
	Memo
	Recorded string
	Text     string
}

// NewEntry builds an entry with the standard recorded timestamp.
func NewEntry(m Memo, text string) Entry {
	return Entry{Memo: m, Recorded: m.Timestamp.Format(RecordedLayout), Text: text}
}

// Session locates a prepared container. Its encoding is private to the
// destination that issued it.
type Session string

// Container describes a container created during a run.
type Container struct {
	ID    string
	Title string
	URL   string
}

// Destination is the lifecycle every backing store implements:
// ValidateConfig, Initialize, then Prepare/Append per memo, then Cleanup.
type Destination interface {
	Kind() Kind
	// ValidateConfig checks configuration without side effects.
	ValidateConfig() error
	// Initialize performs one-time setup. Calling it again is a no-op.
	Initialize(ctx context.Context) error
	// CacheKey is a pure function of the memo; equal keys resolve to the
	// same container and sub-container.
	CacheKey(m Memo) string
	// Prepare resolves or creates the container for m.
	Prepare(ctx context.Context, m Memo) (Session, error)
	// Append writes e as a whole or not at all.
	Append(ctx context.Context, s Session, e Entry) error
	// Cleanup reports on the run and ends it: the created log starts empty
	// for the next run. It never fails.
	Cleanup(ctx context.Context)
	// Created lists containers created since the last Cleanup.
	Created() []Container
}

// CreatedLog records containers created during a run.
type CreatedLog struct {
	items []Container
}

// Add records c.
func (l *CreatedLog) Add(c Container) {
	l.items = append(l.items, c)
}

// Created returns a copy of the recorded containers.
func (l *CreatedLog) Created() []Container {
	out := make([]Container, len(l.items))
	copy(out, l.items)
	return out
}

// Drain returns the recorded containers and empties the log.
func (l *CreatedLog) Drain() []Container {
	out := l.items
	l.items = nil
	return out
}
