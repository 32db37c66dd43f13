// Package transcribe runs the memo pipeline: discovery of unprocessed
// recordings, transcription, destination append and the processed ledger.
package transcribe

import (
	"context"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
)

// MetadataExtractor reads optional fields from a recording. It never fails.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) metadata.AudioMetadata
}

// AudioValidator rejects recordings that cannot be decoded. A rejection
// wraps metadata.ErrCorruptedAudio.
type AudioValidator interface {
	Validate(ctx context.Context, path string) error
}

// Lock guards a pass against a concurrent one.
type Lock interface {
	// Acquire returns a release func, or an error while another process
	// holds the lock.
	Acquire() (release func() error, err error)
}
