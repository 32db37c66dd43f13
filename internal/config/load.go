package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/m-mizutani/goerr/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Nesting levels are separated
// by a double underscore: NOTA_MEMOS_DESTINATION__TYPE=obsidian.
const EnvPrefix = "NOTA_MEMOS_"

// DataDirEnvVar overrides the data directory, and with it the config file.
const DataDirEnvVar = EnvPrefix + "DATA_DIR"

// LoadResult is a loaded configuration and how it was obtained.
type LoadResult struct {
	Config *Config
	// Path is the config file consulted, whether or not it existed.
	Path string
	// FileFound reports whether Path existed.
	FileFound bool
	// Migrated reports whether a legacy layout was converted.
	Migrated bool
}

// Load layers defaults, <dataDir>/config.yaml and NOTA_MEMOS_* environment
// variables, migrates legacy layouts, then validates. An empty dataDir falls
// back to NOTA_MEMOS_DATA_DIR and then DefaultDataDir. Every error wraps
// ErrConfig.
func Load(dataDir string) (*LoadResult, error) {
	dataDir = ResolveDataDir(dataDir)
	path := ConfigPath(dataDir)
	res := &LoadResult{Path: path}

	// Layer 1: file and environment, before defaults, so that migration sees
	// only what the user wrote.
	user := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		res.FileFound = true
		if err := user.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, goerr.Wrap(ErrConfig, "failed to load config file",
				goerr.V("path", path), goerr.V("error", err.Error()))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, goerr.Wrap(ErrConfig, "failed to stat config file",
			goerr.V("path", path), goerr.V("error", err.Error()))
	}
	if err := user.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, goerr.Wrap(ErrConfig, "failed to load environment", goerr.V("error", err.Error()))
	}

	raw := user.Raw()
	if res.FileFound {
		raw, res.Migrated = Migrate(raw)
	}
	normalizeRanges(raw)

	// Layer 2: defaults, then the user layer on top.
	k := koanf.New(".")
	defaults := Default()
	defaults.DataDir = dataDir
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, goerr.Wrap(ErrConfig, "failed to load defaults", goerr.V("error", err.Error()))
	}
	if err := k.Load(mapProvider(raw), nil); err != nil {
		return nil, goerr.Wrap(ErrConfig, "failed to merge configuration", goerr.V("error", err.Error()))
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, goerr.Wrap(ErrConfig, "failed to decode configuration",
			goerr.V("path", path), goerr.V("error", err.Error()))
	}
	cfg.ApplyDefaults()
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res.Config = cfg
	return res, nil
}

// ResolveDataDir picks dataDir, NOTA_MEMOS_DATA_DIR or DefaultDataDir, in
// that order, with ~ expanded.
func ResolveDataDir(dataDir string) string {
	if dataDir == "" {
		dataDir = os.Getenv(DataDirEnvVar)
	}
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return expandTilde(dataDir)
}

// envTransform maps NOTA_MEMOS_DESTINATION__GOOGLE_DOCS__DOC_ID to
// destination.google_docs.doc_id. NOTA_MEMOS_DATA_DIR is skipped here;
// ResolveDataDir already applied it with lower precedence than the flag.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if s == "data_dir" {
		return ""
	}
	return strings.ReplaceAll(s, "__", ".")
}

// mapProvider feeds an already parsed map into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	return m, nil
}

// ErrExists is returned by Save when the file is already present.
var ErrExists = errors.New("config file already exists")

// Save writes cfg as YAML to path. An existing file is only replaced when
// overwrite is set.
func Save(cfg *Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return goerr.Wrap(ErrExists, "refusing to overwrite", goerr.V("path", path))
		}
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return goerr.Wrap(err, "failed to create config directory", goerr.V("path", path))
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write config", goerr.V("path", path))
	}
	return nil
}
