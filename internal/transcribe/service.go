package transcribe

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/stabilizer"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/watcher"
	"github.com/m-mizutani/goerr/v2"
)

// Pass is one processing pass over the voice memos folder.
type Pass interface {
	Run(ctx context.Context) (*Report, error)
}

// Service watches the voice memos folder and runs a pass whenever a new
// recording has finished syncing. Passes never overlap; events that arrive
// during a pass are folded into the next one.
type Service struct {
	cfg        *config.Config
	pass       Pass
	watcher    watcher.FileWatcher
	stabilizer stabilizer.Stabilizer
	out        io.Writer

	wg      sync.WaitGroup
	trigger chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWatcher replaces the inotify watcher.
func WithWatcher(w watcher.FileWatcher) ServiceOption {
	return func(s *Service) { s.watcher = w }
}

// WithStabilizer replaces the size polling stabilizer.
func WithStabilizer(st stabilizer.Stabilizer) ServiceOption {
	return func(s *Service) { s.stabilizer = st }
}

// WithServiceOutput sets where pass summaries are printed.
func WithServiceOutput(w io.Writer) ServiceOption {
	return func(s *Service) { s.out = w }
}

// NewService creates a watch service around pass.
func NewService(cfg *config.Config, pass Pass, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		pass:    pass,
		out:     os.Stdout,
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.stabilizer == nil {
		interval := time.Duration(cfg.Watch.StabilizationIntervalMs) * time.Millisecond
		s.stabilizer = stabilizer.NewPollStabilizer(interval, cfg.Watch.StabilizationChecks)
	}
	if s.watcher == nil {
		fw, err := watcher.NewInotifyWatcher()
		if err != nil {
			return nil, goerr.Wrap(err, "create watcher")
		}
		s.watcher = fw
	}
	return s, nil
}

// Run performs a catch-up pass, then watches until ctx is cancelled or the
// watcher stops.
func (s *Service) Run(ctx context.Context) error {
	logger := logging.From(ctx).With("component", "watch")
	ctx, cancel := context.WithCancel(logging.With(ctx, logger))
	defer cancel()

	events, err := s.watcher.Watch(ctx, s.cfg.VoiceMemosPath, s.cfg.Patterns)
	if err != nil {
		return goerr.Wrap(err, "start watcher", goerr.V("dir", s.cfg.VoiceMemosPath))
	}
	logger.Info("watching for recordings", "dir", s.cfg.VoiceMemosPath, "patterns", s.cfg.Patterns)

	passesDone := make(chan struct{})
	go func() {
		defer close(passesDone)
		s.passLoop(ctx)
	}()
	s.requestPass()

	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			return s.shutdown(ctx, cancel, passesDone)

		case event, ok := <-events:
			if !ok {
				logger.Info("watcher channel closed")
				return s.shutdown(ctx, cancel, passesDone)
			}
			s.handleFileEvent(ctx, event)
		}
	}
}

// handleFileEvent waits for the file to settle in the background, then asks
// for a pass.
func (s *Service) handleFileEvent(ctx context.Context, event watcher.FileEvent) {
	logger := logging.From(ctx)
	logger.Debug("recording detected", "path", event.Path, "size", event.Size)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.stabilizer.WaitForStable(ctx, event.Path); err != nil {
			if ctx.Err() == nil {
				logger.Warn("recording did not stabilize", "path", event.Path, "error", err)
			}
			return
		}
		logger.Debug("recording stable", "path", event.Path)
		s.requestPass()
	}()
}

// requestPass queues a pass unless one is already queued.
func (s *Service) requestPass() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Service) passLoop(ctx context.Context) {
	logger := logging.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		}

		rep, err := s.pass.Run(ctx)
		if err != nil {
			logger.Error("pass failed", "error", err)
			continue
		}
		if rep.Found > 0 {
			rep.Render(s.out)
		}
	}
}

func (s *Service) shutdown(ctx context.Context, cancel context.CancelFunc, passesDone <-chan struct{}) error {
	logger := logging.From(ctx)
	cancel()

	if err := s.watcher.Stop(); err != nil {
		logger.Error("error stopping watcher", "error", err)
	}

	logger.Info("waiting for in-flight work to complete")
	s.wg.Wait()
	<-passesDone

	logger.Info("watch stopped")
	return nil
}
