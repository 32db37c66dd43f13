// Package config loads and validates the transcriber configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/TechnicallyShaun/nota-memos/internal/destination/grouping"
	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"
)

// ConfigFileName is the config file kept in the data directory.
const ConfigFileName = "config.yaml"

// Default values for optional configuration fields.
const (
	DefaultDataDir                 = "~/.voice-memo-transcriber"
	DefaultVoiceMemosPath          = "~/Library/Group Containers/group.com.apple.VoiceMemos.shared/Recordings"
	DefaultBackend                 = "openai"
	DefaultWhisperASRURL           = "http://localhost:9000"
	DefaultOpenAIModel             = "whisper-1"
	DefaultOpenAIBaseURL           = "https://api.openai.com/v1"
	DefaultMaxUploadMB             = 25
	DefaultMinFileSize             = 1000
	DefaultRetryCount              = 3
	DefaultRetryBaseDelayMs        = 1000
	DefaultBreakerThreshold        = 3
	DefaultStabilizationIntervalMs = 2000
	DefaultStabilizationChecks     = 3
	DefaultLogLevel                = "info"
	DefaultLogRetentionDays        = 30
	DefaultObsidianVaultPath       = "~/Documents/Obsidian/MyVault"
	DefaultObsidianFolder          = "Voice Memos"
	DefaultObsidianDateFormat      = "%Y-%m-%d"
)

// DefaultPatterns selects recordings under the voice memos path.
var DefaultPatterns = []string{"**/*.m4a"}

// ErrConfig marks any configuration problem; it is fatal before processing.
var ErrConfig = errors.New("invalid configuration")

// Config is the whole transcriber configuration.
type Config struct {
	Backend        string            `koanf:"backend" yaml:"backend" validate:"oneof=openai whisper_asr"`
	OpenAI         OpenAIConfig      `koanf:"openai" yaml:"openai"`
	WhisperASR     WhisperASRConfig  `koanf:"whisper_asr" yaml:"whisper_asr"`
	VoiceMemosPath string            `koanf:"voice_memos_path" yaml:"voice_memos_path" validate:"required"`
	DataDir        string            `koanf:"data_dir" yaml:"data_dir" validate:"required"`
	Patterns       []string          `koanf:"patterns" yaml:"patterns"`
	MinFileSize    int64             `koanf:"min_file_size" yaml:"min_file_size" validate:"gte=0"`
	FFprobePath    string            `koanf:"ffprobe_path" yaml:"ffprobe_path"`
	Retry          RetryConfig       `koanf:"retry" yaml:"retry"`
	Watch          WatchConfig       `koanf:"watch" yaml:"watch"`
	Log            LogConfig         `koanf:"log" yaml:"log"`
	Destination    DestinationConfig `koanf:"destination" yaml:"destination"`
}

// OpenAIConfig configures the hosted transcription backend.
type OpenAIConfig struct {
	APIKey      string `koanf:"api_key" yaml:"api_key"`
	Model       string `koanf:"model" yaml:"model"`
	BaseURL     string `koanf:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Language    string `koanf:"language" yaml:"language"`
	MaxUploadMB int    `koanf:"max_upload_mb" yaml:"max_upload_mb" validate:"gte=0"`
}

// WhisperASRConfig configures a self-hosted whisper-asr-webservice.
type WhisperASRConfig struct {
	URL            string `koanf:"url" yaml:"url" validate:"omitempty,url"`
	Language       string `koanf:"language" yaml:"language"`
	TimeoutSeconds int    `koanf:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
}

// RetryConfig controls transcription retries and the circuit breaker.
type RetryConfig struct {
	Count            int `koanf:"count" yaml:"count" validate:"gte=0"`
	BaseDelayMs      int `koanf:"base_delay_ms" yaml:"base_delay_ms" validate:"gte=0"`
	BreakerThreshold int `koanf:"breaker_threshold" yaml:"breaker_threshold" validate:"gte=0"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	StabilizationIntervalMs int `koanf:"stabilization_interval_ms" yaml:"stabilization_interval_ms" validate:"gte=0"`
	StabilizationChecks     int `koanf:"stabilization_checks" yaml:"stabilization_checks" validate:"gte=0"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level         string `koanf:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	RetentionDays int    `koanf:"retention_days" yaml:"retention_days" validate:"gte=0"`
}

// DestinationConfig selects and configures the destination.
type DestinationConfig struct {
	Type       string           `koanf:"type" yaml:"type" validate:"oneof=google_docs obsidian"`
	GoogleDocs GoogleDocsConfig `koanf:"google_docs" yaml:"google_docs"`
	Obsidian   ObsidianConfig   `koanf:"obsidian" yaml:"obsidian"`
}

// GoogleDocsConfig configures the tabbed document destination.
type GoogleDocsConfig struct {
	DocID            string                   `koanf:"doc_id" yaml:"doc_id"`
	DocTitle         string                   `koanf:"doc_title" yaml:"doc_title"`
	TabDateFormat    string                   `koanf:"tab_date_format" yaml:"tab_date_format"`
	UseWeeklyDocs    bool                     `koanf:"use_weekly_docs" yaml:"use_weekly_docs"`
	DocumentGrouping grouping.DocumentMode    `koanf:"document_grouping" yaml:"document_grouping"`
	TabGrouping      grouping.UnitMode        `koanf:"tab_grouping" yaml:"tab_grouping"`
	TitleTemplate    string                   `koanf:"title_template" yaml:"title_template,omitempty"`
	TagPattern       string                   `koanf:"tag_pattern" yaml:"tag_pattern"`
	// Ranges are matched first to last. The map form (name: [lo, hi]) is
	// sorted by lower bound on load; use the list form to control the order
	// of overlapping ranges.
	TimeOfDayRanges  []grouping.HourRange     `koanf:"time_of_day_ranges" yaml:"time_of_day_ranges,omitempty"`
	DurationRanges   []grouping.DurationRange `koanf:"duration_ranges" yaml:"duration_ranges,omitempty"`
}

// ObsidianConfig configures the dated notes destination.
type ObsidianConfig struct {
	VaultPath          string `koanf:"vault_path" yaml:"vault_path"`
	Folder             string `koanf:"folder" yaml:"folder"`
	OrganizeBy         string `koanf:"organize_by" yaml:"organize_by" validate:"omitempty,oneof=daily weekly monthly tag"`
	DateFormat         string `koanf:"date_format" yaml:"date_format"`
	IncludeFrontmatter bool   `koanf:"include_frontmatter" yaml:"include_frontmatter"`
	IncludeTags        bool   `koanf:"include_tags" yaml:"include_tags"`
	IncludeMetadata    bool   `koanf:"include_metadata" yaml:"include_metadata"`
	TagPattern         string `koanf:"tag_pattern" yaml:"tag_pattern"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{
		Backend:        DefaultBackend,
		VoiceMemosPath: DefaultVoiceMemosPath,
		DataDir:        DefaultDataDir,
		Log:            LogConfig{Level: DefaultLogLevel},
		Destination: DestinationConfig{
			Type:       "google_docs",
			GoogleDocs: DefaultGoogleDocs(),
			Obsidian:   DefaultObsidian(),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultGoogleDocs returns the Google Docs defaults.
func DefaultGoogleDocs() GoogleDocsConfig {
	return GoogleDocsConfig{
		DocTitle:         grouping.DefaultDocTitle,
		TabDateFormat:    grouping.DefaultUnitDateFormat,
		UseWeeklyDocs:    true,
		DocumentGrouping: grouping.DocumentsWeekly,
		TabGrouping:      grouping.UnitsDaily,
		TagPattern:       grouping.DefaultTagPattern,
	}
}

// DefaultObsidian returns the Obsidian defaults.
func DefaultObsidian() ObsidianConfig {
	return ObsidianConfig{
		VaultPath:          DefaultObsidianVaultPath,
		Folder:             DefaultObsidianFolder,
		OrganizeBy:         "daily",
		DateFormat:         DefaultObsidianDateFormat,
		IncludeFrontmatter: true,
		IncludeTags:        true,
		IncludeMetadata:    true,
		TagPattern:         grouping.DefaultTagPattern,
	}
}

// ApplyDefaults fills optional fields that are empty or zero.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultPatterns
	}
	if c.MinFileSize == 0 {
		c.MinFileSize = DefaultMinFileSize
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultOpenAIBaseURL
	}
	if c.OpenAI.MaxUploadMB == 0 {
		c.OpenAI.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.WhisperASR.URL == "" {
		c.WhisperASR.URL = DefaultWhisperASRURL
	}
	if c.Retry.Count == 0 {
		c.Retry.Count = DefaultRetryCount
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = DefaultRetryBaseDelayMs
	}
	if c.Retry.BreakerThreshold == 0 {
		c.Retry.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.Watch.StabilizationIntervalMs == 0 {
		c.Watch.StabilizationIntervalMs = DefaultStabilizationIntervalMs
	}
	if c.Watch.StabilizationChecks == 0 {
		c.Watch.StabilizationChecks = DefaultStabilizationChecks
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.RetentionDays == 0 {
		c.Log.RetentionDays = DefaultLogRetentionDays
	}

	g := &c.Destination.GoogleDocs
	if g.DocTitle == "" {
		g.DocTitle = grouping.DefaultDocTitle
	}
	if g.TabDateFormat == "" {
		g.TabDateFormat = grouping.DefaultUnitDateFormat
	}
	if g.DocumentGrouping == "" {
		g.DocumentGrouping = grouping.DocumentsWeekly
	}
	if g.TabGrouping == "" {
		g.TabGrouping = grouping.UnitsDaily
	}
	if g.TagPattern == "" {
		g.TagPattern = grouping.DefaultTagPattern
	}

	o := &c.Destination.Obsidian
	if o.Folder == "" {
		o.Folder = DefaultObsidianFolder
	}
	if o.OrganizeBy == "" {
		o.OrganizeBy = "daily"
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultObsidianDateFormat
	}
	if o.TagPattern == "" {
		o.TagPattern = grouping.DefaultTagPattern
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements. Every
// failure wraps ErrConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return goerr.Wrap(ErrConfig, "field failed validation",
				goerr.V("field", fe.Namespace()), goerr.V("rule", fe.Tag()), goerr.V("value", fe.Value()))
		}
		return goerr.Wrap(ErrConfig, err.Error())
	}

	if c.Destination.Type == "obsidian" && c.Destination.Obsidian.VaultPath == "" {
		return goerr.Wrap(ErrConfig, "obsidian destination needs destination.obsidian.vault_path")
	}
	return nil
}

// ConfigPath returns the config file inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandTilde(dataDir), ConfigFileName)
}

// expandPaths expands ~ to the user's home directory in path fields.
func (c *Config) expandPaths() {
	c.VoiceMemosPath = expandTilde(c.VoiceMemosPath)
	c.DataDir = expandTilde(c.DataDir)
	c.FFprobePath = expandTilde(c.FFprobePath)
	c.Destination.Obsidian.VaultPath = expandTilde(c.Destination.Obsidian.VaultPath)
}

// expandTilde expands ~ at the beginning of a path to the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
