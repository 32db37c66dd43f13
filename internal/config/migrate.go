package config

import (
	"sort"
)

// legacyBackends renames backends that no longer exist.
var legacyBackends = map[string]string{
	"local": "whisper_asr",
}

// Migrate converts a legacy flat configuration into the nested destination
// layout. A map that already has a destination section is returned as is and
// the second result is false. The input is never modified.
func Migrate(raw map[string]any) (map[string]any, bool) {
	if _, ok := raw["destination"]; ok {
		return raw, false
	}

	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}

	gdocs := map[string]any{}
	for legacy, key := range map[string]string{
		"google_doc_id":    "doc_id",
		"google_doc_title": "doc_title",
		"tab_date_format":  "tab_date_format",
	} {
		if s, ok := raw[legacy].(string); ok && s != "" {
			gdocs[key] = s
		}
		delete(out, legacy)
	}
	gdocs["use_weekly_docs"] = true

	out["destination"] = map[string]any{
		"type":        "google_docs",
		"google_docs": gdocs,
		"obsidian": map[string]any{
			"vault_path":          DefaultObsidianVaultPath,
			"folder":              DefaultObsidianFolder,
			"organize_by":         "daily",
			"date_format":         DefaultObsidianDateFormat,
			"include_frontmatter": true,
			"include_tags":        true,
			"include_metadata":    true,
		},
	}

	if b, ok := raw["backend"].(string); ok {
		if renamed, ok := legacyBackends[b]; ok {
			out["backend"] = renamed
		}
	}
	if key, ok := raw["openai_api_key"].(string); ok && key != "" {
		out["openai"] = map[string]any{"api_key": key}
		delete(out, "openai_api_key")
	}
	return out, true
}

// rangeLists maps each range setting to the field names of its bounds.
var rangeLists = map[string][2]string{
	"time_of_day_ranges": {"start", "end"},
	"duration_ranges":    {"min", "max"},
}

// normalizeRanges rewrites range settings given as a map of name to bounds,
// for example {"Morning": [5, 12]}, into a list ordered by lower bound and
// then name. Lists are left in their configured order.
//
// YAML maps carry no order, so overlapping ranges written as a map are
// matched by lower bound rather than as typed. Write a list when the first
// matching range has to be a specific one.
func normalizeRanges(raw map[string]any) {
	dest, _ := raw["destination"].(map[string]any)
	gdocs, _ := dest["google_docs"].(map[string]any)
	if gdocs == nil {
		return
	}

	for key, bounds := range rangeLists {
		named, ok := gdocs[key].(map[string]any)
		if !ok {
			continue
		}

		list := make([]map[string]any, 0, len(named))
		for name, v := range named {
			item := map[string]any{"name": name}
			switch b := v.(type) {
			case []any:
				if len(b) > 0 {
					item[bounds[0]] = b[0]
				}
				if len(b) > 1 {
					item[bounds[1]] = b[1]
				}
			case map[string]any:
				for k, val := range b {
					item[k] = val
				}
			}
			list = append(list, item)
		}

		sort.SliceStable(list, func(i, j int) bool {
			li, lj := toFloat(list[i][bounds[0]]), toFloat(list[j][bounds[0]])
			if li != lj {
				return li < lj
			}
			return list[i]["name"].(string) < list[j]["name"].(string)
		})

		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		gdocs[key] = out
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
