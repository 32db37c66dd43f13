package transcribe_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/watcher"
	"github.com/m-mizutani/gt"
)

type chanWatcher struct {
	events  chan watcher.FileEvent
	stopped atomic.Bool
}

func (w *chanWatcher) Watch(context.Context, string, []string) (<-chan watcher.FileEvent, error) {
	return w.events, nil
}

func (w *chanWatcher) Stop() error {
	w.stopped.Store(true)
	return nil
}

type instantStabilizer struct {
	err error
}

func (s instantStabilizer) WaitForStable(context.Context, string) error { return s.err }

type countingPass struct {
	active, maxActive atomic.Int32
	runs              atomic.Int32
	ran               chan struct{}
	err               error
}

func (p *countingPass) Run(context.Context) (*transcribe.Report, error) {
	n := p.active.Add(1)
	for {
		m := p.maxActive.Load()
		if n <= m || p.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.active.Add(-1)
	p.runs.Add(1)
	p.ran <- struct{}{}
	return &transcribe.Report{Found: 1, Succeeded: []string{"memo"}}, p.err
}

func waitRun(t *testing.T, p *countingPass) {
	t.Helper()
	select {
	case <-p.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for pass")
	}
}

func startService(t *testing.T, w *chanWatcher, p *countingPass, stab instantStabilizer) (context.CancelFunc, <-chan error) {
	t.Helper()
	cfg := config.Default()
	cfg.VoiceMemosPath = t.TempDir()

	svc, err := transcribe.NewService(cfg, p,
		transcribe.WithWatcher(w),
		transcribe.WithStabilizer(stab),
		transcribe.WithServiceOutput(&bytes.Buffer{}),
	)
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return cancel, done
}

func TestServiceRunsCatchUpPassThenOnEvents(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.FileEvent)}
	p := &countingPass{ran: make(chan struct{}, 16)}
	cancel, done := startService(t, w, p, instantStabilizer{})

	waitRun(t, p)

	w.events <- watcher.FileEvent{Path: "/memos/new.m4a", Size: 2048}
	waitRun(t, p)

	cancel()
	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	gt.True(t, w.stopped.Load())
	gt.Equal(t, p.runs.Load(), int32(2))
}

func TestServicePassesNeverOverlap(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.FileEvent)}
	p := &countingPass{ran: make(chan struct{}, 64)}
	cancel, done := startService(t, w, p, instantStabilizer{})
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < 10; i++ {
		w.events <- watcher.FileEvent{Path: "/memos/burst.m4a"}
	}
	waitRun(t, p)
	waitRun(t, p)

	gt.Equal(t, p.maxActive.Load(), int32(1))
}

func TestServiceSkipsUnstableFiles(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.FileEvent)}
	p := &countingPass{ran: make(chan struct{}, 16)}
	cancel, done := startService(t, w, p, instantStabilizer{err: errors.New("still growing")})

	waitRun(t, p)
	w.events <- watcher.FileEvent{Path: "/memos/partial.m4a"}
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done
	gt.Equal(t, p.runs.Load(), int32(1))
}

func TestServiceKeepsWatchingAfterFailedPass(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.FileEvent)}
	p := &countingPass{ran: make(chan struct{}, 16), err: errors.New("not authorized")}
	cancel, done := startService(t, w, p, instantStabilizer{})

	waitRun(t, p)
	w.events <- watcher.FileEvent{Path: "/memos/next.m4a"}
	waitRun(t, p)

	cancel()
	gt.NoError(t, <-done)
}

func TestServiceStopsWhenWatcherCloses(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.FileEvent)}
	p := &countingPass{ran: make(chan struct{}, 16)}
	cancel, done := startService(t, w, p, instantStabilizer{})
	defer cancel()

	waitRun(t, p)
	close(w.events)

	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop after watcher closed")
	}
}
