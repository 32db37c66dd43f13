package cmd

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/client"
	"github.com/spf13/cobra"
)

const defaultDataDirHint = config.DefaultDataDir

// app is what every processing command needs: the validated config and
// a logger writing to the console and the daily log file.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile *logging.RotatingFile
	ledger  *ledger.Ledger
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func loadApp(cmd *cobra.Command) (*app, error) {
	res, err := config.Load(flagString(cmd, "data-dir"))
	if err != nil {
		return nil, err
	}
	cfg := res.Config

	level := cfg.Log.Level
	if l := flagString(cmd, "log-level"); l != "" {
		level = l
	}

	logFile, err := logging.OpenRotatingFile(logging.FileConfig{
		Dir:           filepath.Join(cfg.DataDir, logging.DirName),
		RetentionDays: cfg.Log.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFile(level, cmd.ErrOrStderr(), logFile)
	logging.SetDefault(logger)

	if res.Migrated {
		logger.Warn("legacy configuration converted in memory",
			"path", res.Path, "hint", "run `nota-memos config migrate` to rewrite the file")
	}
	if !res.FileFound {
		logger.Debug("no config file, using defaults and environment", "path", res.Path)
	}
	return &app{cfg: cfg, logger: logger, logFile: logFile}, nil
}

func (a *app) context(parent context.Context) context.Context {
	return logging.With(parent, a.logger)
}

// newRunner builds the destination, transcription client and ledger for a
// pass. Close releases the ledger.
func (a *app) newRunner(ctx context.Context, out io.Writer, opts ...transcribe.RunnerOption) (*transcribe.Runner, error) {
	dest, err := transcribe.NewDestination(a.cfg, out)
	if err != nil {
		return nil, err
	}
	tc, topts, err := client.New(a.cfg)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.ledger = l

	opts = append([]transcribe.RunnerOption{transcribe.WithOutput(out)}, opts...)
	return transcribe.NewRunner(a.cfg, dest, tc, topts, l, opts...), nil
}

func (a *app) Close() error {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("failed to close ledger", "error", err)
		}
	}
	return a.logFile.Close()
}
