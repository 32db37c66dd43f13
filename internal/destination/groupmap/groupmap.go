// Package groupmap persists the mapping from group keys to the containers
// created for them, so a container is created at most once per key.
package groupmap

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/TechnicallyShaun/nota-memos/internal/destination/grouping"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultFileName is the map file kept in the data directory.
const DefaultFileName = "docs_by_week.json"

// CurrentVersion is written by Save.
const CurrentVersion = 2

// ErrConflict is returned when a key is already mapped to a different container.
var ErrConflict = errors.New("group key already mapped to another container")

// Format identifies the on-disk shape a map was loaded from.
type Format string

const (
	FormatEmpty        Format = "empty"
	FormatCanonical    Format = "canonical"
	FormatModeTagged   Format = "mode-tagged"
	FormatLegacySingle Format = "legacy-single"
	FormatLegacyFlat   Format = "legacy-flat"
)

// Entry is one mapping.
type Entry struct {
	Key string
	ID  string
}

// Map is a group key to container id mapping backed by a JSON file. It is not
// safe for concurrent use.
type Map struct {
	path   string
	groups map[string]string
	format Format
}

type canonicalFile struct {
	Version int               `json:"version"`
	Groups  map[string]string `json:"groups"`
}

type modeTaggedFile struct {
	Mode   *string           `json:"mode"`
	Weekly map[string]string `json:"weekly"`
	Single *string           `json:"single"`
}

// Load reads the map at path, converting older layouts in memory. A missing
// file yields an empty map. Nothing is written until the next Put or Save.
func Load(path string) (*Map, error) {
	m := &Map{path: path, groups: map[string]string{}, format: FormatEmpty}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, goerr.Wrap(err, "failed to read group map", goerr.V("path", path))
	}
	if len(data) == 0 {
		return m, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, goerr.Wrap(err, "group map is not a JSON object", goerr.V("path", path))
	}

	switch {
	case has(probe, "groups"):
		var f canonicalFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, goerr.Wrap(err, "failed to decode group map", goerr.V("path", path))
		}
		m.format = FormatCanonical
		m.merge(f.Groups)

	case has(probe, "mode"):
		var f modeTaggedFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, goerr.Wrap(err, "failed to decode mode-tagged group map", goerr.V("path", path))
		}
		m.format = FormatModeTagged
		m.merge(f.Weekly)
		if f.Single != nil && *f.Single != "" {
			m.groups[grouping.SingleKey] = *f.Single
		}

	case has(probe, "single_doc"):
		var f struct {
			SingleDoc string `json:"single_doc"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, goerr.Wrap(err, "failed to decode legacy group map", goerr.V("path", path))
		}
		m.format = FormatLegacySingle
		if f.SingleDoc != "" {
			m.groups[grouping.SingleKey] = f.SingleDoc
		}

	default:
		var flat map[string]string
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, goerr.Wrap(err, "failed to decode legacy flat group map", goerr.V("path", path))
		}
		m.format = FormatLegacyFlat
		m.merge(flat)
	}

	return m, nil
}

func has(probe map[string]json.RawMessage, key string) bool {
	_, ok := probe[key]
	return ok
}

func (m *Map) merge(src map[string]string) {
	for k, v := range src {
		if v != "" {
			m.groups[k] = v
		}
	}
}

// Path returns the backing file.
func (m *Map) Path() string { return m.path }

// Format reports the layout the map was loaded from.
func (m *Map) Format() Format { return m.format }

// Lookup returns the container id mapped to key.
func (m *Map) Lookup(key string) (string, bool) {
	id, ok := m.groups[key]
	return id, ok
}

// Put records key -> id and saves immediately. Re-putting the same pair is a
// no-op; mapping an existing key to a different id fails with ErrConflict.
func (m *Map) Put(key, id string) error {
	if id == "" {
		return goerr.New("container id is empty", goerr.V("key", key))
	}
	if existing, ok := m.groups[key]; ok {
		if existing == id {
			return nil
		}
		return goerr.Wrap(ErrConflict, "refusing to remap group key",
			goerr.V("key", key), goerr.V("existing", existing), goerr.V("id", id))
	}

	m.groups[key] = id
	if err := m.Save(); err != nil {
		delete(m.groups, key)
		return err
	}
	return nil
}

// Len returns the number of mappings.
func (m *Map) Len() int { return len(m.groups) }

// Entries returns all mappings sorted by key.
func (m *Map) Entries() []Entry {
	entries := make([]Entry, 0, len(m.groups))
	for k, v := range m.groups {
		entries = append(entries, Entry{Key: k, ID: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Save writes the canonical layout atomically through a temp file and rename.
func (m *Map) Save() error {
	data, err := json.MarshalIndent(canonicalFile{Version: CurrentVersion, Groups: m.groups}, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode group map")
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return goerr.Wrap(err, "failed to create group map directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".groupmap-*.tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write group map", goerr.V("path", tmpName))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to sync group map", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close group map", goerr.V("path", tmpName))
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return goerr.Wrap(err, "failed to replace group map", goerr.V("path", m.path))
	}

	m.format = FormatCanonical
	return nil
}
