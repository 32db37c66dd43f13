package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/gdocs"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

// NewAuthCmd creates the auth command group
func NewAuthCmd(prompter Prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to destinations",
	}
	cmd.AddCommand(newAuthGoogleCmd(prompter))
	return cmd
}

func newAuthGoogleCmd(prompter Prompter) *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Authorize Google Docs access",
		Long: `Authorize nota-memos to edit Google Docs on your behalf.

Download an OAuth client ("Desktop app") from the Google Cloud console and
save it as credentials.json in the data directory. Open the printed URL,
approve access, then paste the "code" parameter from the address bar of the
page you are sent to. The token is saved as token.json next to the
credentials and refreshed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := prompter
			if p == nil {
				p = NewStdinPrompter()
			}

			dataDir := config.ResolveDataDir(flagString(cmd, "data-dir"))
			oauth := gdocs.NewOAuth(dataDir)

			url, err := oauth.AuthCodeURL(ulid.Make().String())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL in your browser and approve access:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %s\n", url)
			fmt.Fprintln(out)

			code, err := promptRequired(p, "Authorization code: ")
			if err != nil {
				return err
			}
			if err := oauth.Exchange(cmd.Context(), code); err != nil {
				return err
			}

			fmt.Fprintf(out, "Token saved to %s\n", filepath.Clean(oauth.TokenPath))
			return nil
		},
	}
}
