package cmd

import (
	"os/signal"
	"syscall"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/pidfile"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Transcribe new voice memos once",
		Long: `Scan the voice memos folder for recordings not yet processed, transcribe
them oldest first and append each transcript to the configured destination.

A recording is marked processed only after its transcript was appended.
Failed recordings are retried on the next run. Ctrl+C stops after the
memo in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(a.context(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			runner, err := a.newRunner(ctx, out, transcribe.WithLock(pidfile.New(a.cfg.DataDir)))
			if err != nil {
				return err
			}

			rep, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			if rep.Found > 0 {
				rep.Render(out)
			}
			return nil
		},
	}
}
