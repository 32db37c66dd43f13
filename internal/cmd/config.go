package cmd

import (
	"fmt"
	"os"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

// NewConfigCmd creates the config command group
func NewConfigCmd(prompter Prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and migrate the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(prompter))
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigMigrateCmd())
	return cmd
}

func newConfigInitCmd(prompter Prompter) *cobra.Command {
	var force, interactive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml to the data directory",
		Long: `Write a config.yaml with every default spelled out.

With --interactive the voice memos folder, backend and destination are
asked for first. The OpenAI key is never written unless typed in; leave it
empty to use OPENAI_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := config.ResolveDataDir(flagString(cmd, "data-dir"))

			cfg := config.Default()
			cfg.DataDir = dataDir
			cfg.OpenAI.APIKey = ""

			if interactive {
				p := prompter
				if p == nil {
					p = NewStdinPrompter()
				}
				if err := promptConfig(cmd, p, cfg); err != nil {
					return err
				}
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			path := config.ConfigPath(dataDir)
			if err := config.Save(cfg, path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for the main settings")
	return cmd
}

func promptConfig(cmd *cobra.Command, p Prompter, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Voice Memo Transcriber Configuration")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out, "")

	var err error
	if cfg.VoiceMemosPath, err = promptDefault(p, "Voice memos folder", cfg.VoiceMemosPath); err != nil {
		return err
	}
	if cfg.Backend, err = promptDefault(p, "Transcription backend (openai, whisper_asr)", cfg.Backend); err != nil {
		return err
	}
	switch cfg.Backend {
	case client.BackendOpenAI:
		if cfg.OpenAI.APIKey, err = p.Prompt("OpenAI API key [optional, Enter to use OPENAI_API_KEY]: "); err != nil {
			return err
		}
	case client.BackendWhisperASR:
		if cfg.WhisperASR.URL, err = promptDefault(p, "whisper-asr-webservice URL", cfg.WhisperASR.URL); err != nil {
			return err
		}
	}

	if cfg.Destination.Type, err = promptDefault(p, "Destination (google_docs, obsidian)", cfg.Destination.Type); err != nil {
		return err
	}
	if cfg.Destination.Type == "obsidian" {
		if cfg.Destination.Obsidian.VaultPath, err = promptRequired(p, "Obsidian vault path [required]: "); err != nil {
			return err
		}
		if cfg.Destination.Obsidian.OrganizeBy, err = promptDefault(p, "Organize notes by (daily, weekly, monthly, tag)",
			cfg.Destination.Obsidian.OrganizeBy); err != nil {
			return err
		}
	}
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the config file and NOTA_MEMOS_* variables are merged. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.Load(flagString(cmd, "data-dir"))
			if err != nil {
				return err
			}
			cfg := *res.Config
			if cfg.OpenAI.APIKey != "" {
				cfg.OpenAI.APIKey = redacted
			}

			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.FileFound {
				fmt.Fprintf(out, "# %s\n", res.Path)
			} else {
				fmt.Fprintf(out, "# %s (not found, defaults shown)\n", res.Path)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite a legacy config.yaml in the current layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.Load(flagString(cmd, "data-dir"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.FileFound || !res.Migrated {
				fmt.Fprintln(out, "Configuration is already current")
				return nil
			}

			cfg := *res.Config
			if cfg.OpenAI.APIKey == os.Getenv("OPENAI_API_KEY") {
				cfg.OpenAI.APIKey = ""
			}
			if err := config.Save(&cfg, res.Path, true); err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration migrated: %s\n", res.Path)
			return nil
		},
	}
}
