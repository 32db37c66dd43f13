package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/client"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/status"
	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
)

const rule = "============================================================"

// Runner performs one pass over the voice memos folder. A Runner is not
// safe for concurrent passes; Service serializes them.
type Runner struct {
	cfg       *config.Config
	dest      destination.Destination
	client    client.TranscriptionClient
	opts      client.TranscribeOptions
	ledger    *ledger.Ledger
	extractor MetadataExtractor
	validator AudioValidator
	lock      Lock
	out       io.Writer
	now       func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLock makes every pass hold lock. Without it the caller is trusted to
// serialize passes.
func WithLock(lock Lock) RunnerOption {
	return func(r *Runner) { r.lock = lock }
}

// WithOutput sets where progress and the summary are printed.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.out = w }
}

// WithExtractor replaces the ffprobe metadata extractor.
func WithExtractor(e MetadataExtractor) RunnerOption {
	return func(r *Runner) { r.extractor = e }
}

// WithValidator replaces the ffprobe audio validator.
func WithValidator(v AudioValidator) RunnerOption {
	return func(r *Runner) { r.validator = v }
}

// WithClock overrides the time source used for report timing.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner wires a pass from its collaborators.
func NewRunner(cfg *config.Config, dest destination.Destination, tc client.TranscriptionClient,
	opts client.TranscribeOptions, l *ledger.Ledger, ropts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg,
		dest:      dest,
		client:    tc,
		opts:      opts,
		ledger:    l,
		extractor: metadata.NewExtractor(metadata.WithFFprobe(cfg.FFprobePath)),
		validator: metadata.NewProber(metadata.WithFFprobe(cfg.FFprobePath)),
		out:       os.Stdout,
		now:       time.Now,
	}
	for _, opt := range ropts {
		opt(r)
	}
	return r
}

// Failure is one memo that did not make it into the destination.
type Failure struct {
	Name      string
	Err       error
	Corrupted bool
}

// Report summarizes a pass.
type Report struct {
	RunID       string
	Found       int
	Succeeded   []string
	Failed      []Failure
	Skipped     []string
	Created     []destination.Container
	Interrupted bool
	Elapsed     time.Duration
}

// Render prints the end-of-run summary.
func (rep *Report) Render(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	if rep.Interrupted {
		fmt.Fprintln(w, "Processing interrupted.")
	} else {
		fmt.Fprintln(w, "Processing complete!")
	}
	fmt.Fprintf(w, "   Success: %d/%d memos\n", len(rep.Succeeded), rep.Found)
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(w, "   Skipped: %d/%d memos (too small)\n", len(rep.Skipped), rep.Found)
	}
	if len(rep.Failed) > 0 {
		fmt.Fprintf(w, "   Failed: %d/%d memos\n", len(rep.Failed), rep.Found)
		fmt.Fprintln(w, "   Failed memos will be retried on next run:")
		for _, f := range rep.Failed {
			if f.Corrupted {
				fmt.Fprintf(w, "     - %s (corrupted)\n", f.Name)
			} else {
				fmt.Fprintf(w, "     - %s\n", f.Name)
			}
		}
	}
	fmt.Fprintln(w, rule)
}

// FailedNames lists the names of failed memos.
func (rep *Report) FailedNames() []string {
	names := make([]string, len(rep.Failed))
	for i, f := range rep.Failed {
		names[i] = f.Name
	}
	return names
}

// Run performs one pass. Configuration and initialization problems abort it
// before any memo is touched; per-memo problems are recorded in the report.
// Cancelling ctx stops the pass between memos.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	rep := &Report{RunID: ulid.Make().String()}
	logger := logging.From(ctx).With("run_id", rep.RunID)
	ctx = logging.With(ctx, logger)

	if err := r.dest.ValidateConfig(); err != nil {
		return nil, err
	}

	if r.lock != nil {
		release, err := r.lock.Acquire()
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	fmt.Fprintln(r.out, "Scanning for new voice memos...")
	items, err := Discover(ctx, r.cfg.VoiceMemosPath, r.cfg.Patterns, r.ledger)
	if err != nil {
		return nil, err
	}
	rep.Found = len(items)
	if len(items) == 0 {
		fmt.Fprintln(r.out, "No new memos to transcribe.")
		rep.Elapsed = r.now().Sub(start)
		return rep, nil
	}
	fmt.Fprintf(r.out, "Found %d new memo(s)\n", len(items))
	logger.Info("run started", "memos", len(items), "destination", string(r.dest.Kind()))

	fmt.Fprintf(r.out, "Initializing %s destination...\n", r.dest.Kind())
	if err := r.dest.Initialize(ctx); err != nil {
		return nil, err
	}
	defer func() {
		rep.Created = r.dest.Created()
		r.dest.Cleanup(context.WithoutCancel(ctx))
	}()

	sessions := map[string]destination.Session{}
	for _, it := range items {
		if ctx.Err() != nil {
			rep.Interrupted = true
			logger.Warn("run interrupted", "remaining", rep.Found-len(rep.Succeeded)-len(rep.Failed)-len(rep.Skipped))
			break
		}
		r.process(ctx, it, sessions, rep)
	}

	rep.Elapsed = r.now().Sub(start)
	logger.Info("run finished",
		"succeeded", len(rep.Succeeded),
		"failed", len(rep.Failed),
		"skipped", len(rep.Skipped),
		"elapsed", rep.Elapsed.Round(time.Millisecond).String(),
	)
	return rep, nil
}

func (r *Runner) process(ctx context.Context, it Item, sessions map[string]destination.Session, rep *Report) {
	logger := logging.From(ctx).With("name", it.Name, "path", it.Path)
	memo := destination.Memo{Path: it.Path, Name: it.Name, Timestamp: it.ModTime.Local()}

	fmt.Fprintf(r.out, "\nProcessing: %s\n", it.Name)
	fmt.Fprintf(r.out, "   Recorded: %s\n", memo.Timestamp.Format(destination.RecordedLayout))

	if it.Size < r.cfg.MinFileSize {
		fmt.Fprintf(r.out, "   Skipping: file is too small (%s), likely empty\n", humanize.Bytes(uint64(it.Size)))
		if err := r.mark(ctx, rep.RunID, it, memo, ledger.StatusTooSmall, ""); err != nil {
			logger.Error("failed to mark small memo", "error", err)
		}
		rep.Skipped = append(rep.Skipped, it.Name)
		return
	}

	memo.Metadata = r.extractor.Extract(ctx, it.Path)

	session, err := r.session(ctx, memo, sessions)
	if err != nil {
		r.fail(ctx, rep, it, err, false)
		return
	}

	if err := r.validator.Validate(ctx, it.Path); err != nil {
		corrupted := errors.Is(err, metadata.ErrCorruptedAudio)
		if corrupted {
			fmt.Fprintln(r.out, "   Marking as processed to avoid retrying a corrupted file")
			if merr := r.mark(ctx, rep.RunID, it, memo, ledger.StatusCorrupted, ""); merr != nil {
				logger.Error("failed to mark corrupted memo", "error", merr)
			}
		}
		r.fail(ctx, rep, it, err, corrupted)
		return
	}

	fmt.Fprintf(r.out, "   Transcribing with %s backend...\n", r.cfg.Backend)
	res, err := r.client.Transcribe(ctx, it.Path, r.opts)
	if err != nil {
		r.fail(ctx, rep, it, err, false)
		return
	}

	// Once transcribed, the memo is appended and marked even if the pass is
	// being cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := r.dest.Append(ctx, session, destination.NewEntry(memo, res.Text)); err != nil {
		r.fail(ctx, rep, it, err, false)
		return
	}
	fmt.Fprintln(r.out, "   Added to destination")

	if err := r.mark(ctx, rep.RunID, it, memo, ledger.StatusOK, session); err != nil {
		r.fail(ctx, rep, it, err, false)
		return
	}

	fmt.Fprintln(r.out, "   Done!")
	logger.Info(status.MsgProcessed, "session", string(session), "chars", len(res.Text))
	rep.Succeeded = append(rep.Succeeded, it.Name)
}

// session resolves the container for memo, preparing it only the first
// time its cache key is seen in this pass.
func (r *Runner) session(ctx context.Context, memo destination.Memo, sessions map[string]destination.Session) (destination.Session, error) {
	key := r.dest.CacheKey(memo)
	if s, ok := sessions[key]; ok {
		return s, nil
	}
	s, err := r.dest.Prepare(ctx, memo)
	if err != nil {
		return "", goerr.Wrap(err, "failed to prepare destination", goerr.V("cache_key", key))
	}
	sessions[key] = s
	logging.From(ctx).Debug("destination prepared", "cache_key", key, "session", string(s))
	return s, nil
}

func (r *Runner) mark(ctx context.Context, runID string, it Item, memo destination.Memo, st ledger.Status, session destination.Session) error {
	return r.ledger.Mark(ctx, ledger.Record{
		Hash:       it.Hash,
		Path:       it.Path,
		Name:       it.Name,
		RecordedAt: memo.Timestamp,
		Status:     st,
		Session:    string(session),
		RunID:      runID,
	})
}

func (r *Runner) fail(ctx context.Context, rep *Report, it Item, err error, corrupted bool) {
	if corrupted {
		fmt.Fprintf(r.out, "   Skipping: %s\n", firstLine(err))
	} else {
		fmt.Fprintf(r.out, "   Error: %s\n", firstLine(err))
		fmt.Fprintln(r.out, "   Memo NOT marked as processed, will retry on next run")
	}
	logging.From(ctx).Error(status.MsgFailed, "name", it.Name, "path", it.Path, "corrupted", corrupted, "error", err)
	rep.Failed = append(rep.Failed, Failure{Name: it.Name, Err: err, Corrupted: corrupted})
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
