package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
)

// Splitter cuts long recordings into stream-copied chunks with ffmpeg.
type Splitter struct {
	ffmpeg  string
	ffprobe string
	run     metadata.CommandRunner
	tempDir string
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithFFmpegPath sets the ffmpeg binary.
func WithFFmpegPath(path string) SplitterOption {
	return func(s *Splitter) {
		if path != "" {
			s.ffmpeg = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary used to read durations.
func WithFFprobePath(path string) SplitterOption {
	return func(s *Splitter) {
		if path != "" {
			s.ffprobe = path
		}
	}
}

// WithCommandRunner replaces process execution.
func WithCommandRunner(run metadata.CommandRunner) SplitterOption {
	return func(s *Splitter) { s.run = run }
}

// WithTempDir sets where chunk directories are created.
func WithTempDir(dir string) SplitterOption {
	return func(s *Splitter) { s.tempDir = dir }
}

// NewSplitter creates a splitter using ffmpeg and ffprobe from PATH.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{ffmpeg: "ffmpeg", ffprobe: "ffprobe", run: metadata.ExecRunner}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split returns path itself when it fits in maxBytes. Otherwise it writes
// chunk_000.m4a, chunk_001.m4a... to a temporary directory, sizing each chunk
// by assuming bytes are proportional to duration. cleanup removes the chunks
// and is always safe to call.
func (s *Splitter) Split(ctx context.Context, path string, maxBytes int64) (chunks []string, cleanup func(), err error) {
	cleanup = func() {}

	info, err := os.Stat(path)
	if err != nil {
		return nil, cleanup, goerr.Wrap(err, "stat audio file", goerr.V("path", path))
	}
	if maxBytes <= 0 || info.Size() <= maxBytes {
		return []string{path}, cleanup, nil
	}

	logger := logging.From(ctx)
	logger.Info("splitting large recording",
		"path", path, "size", humanize.IBytes(uint64(info.Size())), "limit", humanize.IBytes(uint64(maxBytes)))

	duration, err := s.duration(ctx, path)
	if err != nil {
		return nil, cleanup, err
	}

	chunkSeconds := int(duration * float64(maxBytes) / float64(info.Size()))
	if chunkSeconds < 1 {
		chunkSeconds = 1
	}

	dir, err := os.MkdirTemp(s.tempDir, "voice-memo-chunks-")
	if err != nil {
		return nil, cleanup, goerr.Wrap(err, "create chunk directory")
	}
	cleanup = func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove chunks", "dir", dir, "error", err)
		}
	}

	for n, start := 0, 0; float64(start) < duration; n, start = n+1, start+chunkSeconds {
		chunk := filepath.Join(dir, fmt.Sprintf("chunk_%03d.m4a", n))
		args := []string{
			"-v", "error",
			"-i", path,
			"-ss", strconv.Itoa(start),
			"-t", strconv.Itoa(chunkSeconds),
			"-c", "copy", "-y", chunk,
		}
		if _, err := s.run(ctx, s.ffmpeg, args...); err != nil {
			cleanup()
			return nil, func() {}, goerr.Wrap(err, "ffmpeg split failed", goerr.V("path", path), goerr.V("chunk", n))
		}
		chunks = append(chunks, chunk)
	}

	logger.Debug("created chunks", "count", len(chunks), "seconds_each", chunkSeconds)
	return chunks, cleanup, nil
}

func (s *Splitter) duration(ctx context.Context, path string) (float64, error) {
	out, err := s.run(ctx, s.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, goerr.Wrap(err, "ffprobe duration failed", goerr.V("path", path))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, goerr.New("could not determine duration", goerr.V("path", path), goerr.V("output", string(out)))
	}
	return d, nil
}
