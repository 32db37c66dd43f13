package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the nota-memos CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nota-memos",
		Short: "Transcribe voice memos into grouped documents",
		Long: `nota-memos transcribes new voice memo recordings and appends the text to
Google Docs tabs or Obsidian notes, grouped by week, month, tag, day,
time of day or duration.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default $NOTA_MEMOS_DATA_DIR or "+defaultDataDirHint+")")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewStopCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewConfigCmd(nil))
	rootCmd.AddCommand(NewAuthCmd(nil))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
