package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/pidfile"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch for new voice memos and transcribe them",
		Long: `Run in the foreground, transcribing recordings as they appear.

A catch-up pass runs at start. After that, each recording that lands in the
voice memos folder is given time to finish syncing, then triggers a pass.
Passes never overlap. The watcher holds the run lock, so a concurrent
"run" is refused.

The watcher runs until interrupted with Ctrl+C, SIGTERM or "nota-memos stop".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			release, err := pidfile.New(a.cfg.DataDir).Acquire()
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(a.context(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			runner, err := a.newRunner(ctx, out)
			if err != nil {
				return err
			}
			svc, err := transcribe.NewService(a.cfg, runner, transcribe.WithServiceOutput(out))
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Starting voice memo watcher...")
			fmt.Fprintf(out, "Watching: %s\n", a.cfg.VoiceMemosPath)
			fmt.Fprintf(out, "Output:   %s\n", a.cfg.Destination.Type)
			fmt.Fprintln(out, "Press Ctrl+C to stop")
			fmt.Fprintln(out)

			return svc.Run(ctx)
		},
	}
}

// stopTimeout is the maximum time to wait for graceful shutdown before sending SIGKILL
const stopTimeout = 10 * time.Second

// ErrNotRunning indicates the watcher is not running
var ErrNotRunning = errors.New("watcher is not running")

// ErrStaleProcess indicates the PID file exists but the process is not running
var ErrStaleProcess = errors.New("stale PID file (process not running)")

// NewStopCmd creates the stop command
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running watcher",
		Long: `Stop a running watcher.

Reads the PID from the run lock in the data directory and sends SIGTERM for
graceful shutdown. If the process doesn't exit within 10 seconds, SIGKILL is
sent to force termination. The lock file is removed after the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, pidfile.New(config.ResolveDataDir(flagString(cmd, "data-dir"))), stopTimeout)
		},
	}
}

func runStop(cmd *cobra.Command, lock *pidfile.File, timeout time.Duration) error {
	out := cmd.OutOrStdout()

	pid, err := lock.Signal(unix.SIGTERM)
	switch {
	case errors.Is(err, pidfile.ErrNoPIDFile):
		return ErrNotRunning
	case errors.Is(err, pidfile.ErrProcessNotFound):
		if err := lock.Remove(); err != nil {
			fmt.Fprintf(out, "Warning: failed to remove stale PID file: %v\n", err)
		}
		return ErrStaleProcess
	case err != nil:
		return err
	}
	fmt.Fprintf(out, "Stopping watcher (PID %d)...\n", pid)

	if !waitForExit(lock, timeout) {
		fmt.Fprintln(out, "Process did not exit gracefully, sending SIGKILL...")
		if _, err := lock.Signal(unix.SIGKILL); err != nil && !errors.Is(err, pidfile.ErrProcessNotFound) && !errors.Is(err, pidfile.ErrNoPIDFile) {
			return err
		}
		waitForExit(lock, 2*time.Second)
	}

	if err := lock.Remove(); err != nil {
		fmt.Fprintf(out, "Warning: failed to remove PID file: %v\n", err)
	}
	fmt.Fprintln(out, "Watcher stopped")
	return nil
}

// waitForExit polls until the lock holder exits or timeout is reached
func waitForExit(lock *pidfile.File, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if running, _, err := lock.IsRunning(); err == nil && !running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
