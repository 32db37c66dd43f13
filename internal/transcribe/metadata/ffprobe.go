package metadata

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

// ErrCorruptedAudio marks a recording that can never be transcribed. Callers
// treat it as final rather than retrying the file on the next run.
var ErrCorruptedAudio = errors.New("corrupted audio file")

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 10 * time.Second

// CommandRunner runs an external program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs name with exec.CommandContext.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Option configures an Extractor or Prober.
type Option func(*probeConfig)

type probeConfig struct {
	binary  string
	timeout time.Duration
	run     CommandRunner
}

// WithFFprobe sets the ffprobe binary path.
func WithFFprobe(path string) Option {
	return func(c *probeConfig) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(c *probeConfig) {
		c.timeout = d
	}
}

// WithRunner replaces process execution, mainly for tests.
func WithRunner(run CommandRunner) Option {
	return func(c *probeConfig) {
		c.run = run
	}
}

func newProbeConfig(opts []Option) probeConfig {
	c := probeConfig{binary: "ffprobe", timeout: DefaultProbeTimeout, run: ExecRunner}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c probeConfig) probe(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := c.run(ctx, c.binary, args...)
	if err != nil && ctx.Err() != nil {
		return nil, goerr.Wrap(ctx.Err(), "ffprobe did not finish", goerr.V("binary", c.binary))
	}
	return out, err
}

// Extractor reads recording metadata with ffprobe and falls back to the
// built-in M4A reader when ffprobe is unavailable or fails.
type Extractor struct {
	cfg probeConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	return &Extractor{cfg: newProbeConfig(opts)}
}

// Extract never fails: on any error it returns whatever it could determine,
// which may be nothing at all.
func (e *Extractor) Extract(ctx context.Context, path string) AudioMetadata {
	out, err := e.cfg.probe(ctx, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err == nil {
		if meta, err := parseProbe(out); err == nil {
			return meta
		}
	}

	meta, err := ReadM4A(path)
	if err != nil {
		return AudioMetadata{}
	}
	return meta
}

type probeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

func parseProbe(data []byte) (AudioMetadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return AudioMetadata{}, err
	}

	var meta AudioMetadata
	tags := out.Format.Tags

	if title, ok := tags["title"]; ok {
		meta.Title = title
	} else if title, ok := tags["TIT2"]; ok {
		meta.Title = title
	}

	if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && secs > 0 {
		meta.Duration = time.Duration(secs * float64(time.Second))
	}

	if created, ok := tags["creation_time"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			meta.CreationTime = t
		}
	}

	if encoder := tags["encoder"]; strings.Contains(encoder, "iPhone") || strings.Contains(encoder, "iPad") {
		meta.Device = encoder
	}

	return meta, nil
}

// Prober checks that a recording can be decoded before it is sent for
// transcription.
type Prober struct {
	cfg probeConfig
}

// NewProber creates a Prober.
func NewProber(opts ...Option) *Prober {
	return &Prober{cfg: newProbeConfig(opts)}
}

// Validate returns ErrCorruptedAudio when ffprobe cannot read a positive
// duration from the file. A missing ffprobe binary skips validation.
func (p *Prober) Validate(ctx context.Context, path string) error {
	out, err := p.cfg.probe(ctx, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return goerr.Wrap(ErrCorruptedAudio, "ffprobe could not read file",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return goerr.Wrap(ErrCorruptedAudio, "could not determine file duration", goerr.V("path", path))
	}
	if secs <= 0 {
		return goerr.Wrap(ErrCorruptedAudio, "file has zero duration", goerr.V("path", path))
	}
	return nil
}

// FormatDuration renders d as "1h 5m 30s", "3m 24s" or "42s".
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := total % 3600 / 60
	secs := total % 60

	switch {
	case hours > 0:
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m " + strconv.Itoa(secs) + "s"
	case minutes > 0:
		return strconv.Itoa(minutes) + "m " + strconv.Itoa(secs) + "s"
	default:
		return strconv.Itoa(secs) + "s"
	}
}
