package cmd

import (
	"path/filepath"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/groupmap"
	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/pidfile"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/status"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show watcher state, processed memos and known documents",
		Long: `Show whether a watcher is running, how many recordings the ledger holds
by status, the last processed memo, the group to document map and today's
activity from the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := config.ResolveDataDir(flagString(cmd, "data-dir"))
			ctx := cmd.Context()

			l, err := ledger.Open(ctx, dataDir)
			if err != nil {
				return err
			}
			defer l.Close()

			rep, err := status.Collect(ctx, status.Sources{
				Ledger:       l,
				GroupMapPath: filepath.Join(dataDir, groupmap.DefaultFileName),
				Lock:         pidfile.New(dataDir),
				LogDir:       filepath.Join(dataDir, logging.DirName),
			})
			if err != nil {
				return err
			}
			rep.Render(cmd.OutOrStdout())
			return nil
		},
	}
}
