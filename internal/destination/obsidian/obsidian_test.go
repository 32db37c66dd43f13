package obsidian_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/destination/obsidian"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/m-mizutani/gt"
	"gopkg.in/yaml.v3"
)

func newVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gt.NoError(t, os.Mkdir(filepath.Join(dir, ".obsidian"), 0755))
	return dir
}

func newStore(t *testing.T, mutate func(*config.ObsidianConfig)) (*obsidian.Store, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultObsidian()
	cfg.VaultPath = newVault(t)
	if mutate != nil {
		mutate(&cfg)
	}
	out := &bytes.Buffer{}
	store, err := obsidian.New(cfg, obsidian.WithOutput(out))
	gt.NoError(t, err)
	gt.NoError(t, store.Initialize(context.Background()))
	return store, out
}

func memoAt(name string, ts time.Time) destination.Memo {
	return destination.Memo{Path: "/memos/" + name + ".m4a", Name: name, Timestamp: ts}
}

func frontmatter(t *testing.T, content string) map[string]any {
	t.Helper()
	gt.True(t, strings.HasPrefix(content, "---\n"))
	end := strings.Index(content[4:], "\n---\n")
	gt.True(t, end >= 0)
	var fm map[string]any
	gt.NoError(t, yaml.Unmarshal([]byte(content[4:4+end+1]), &fm))
	return fm
}

func appendAll(t *testing.T, store *obsidian.Store, memos ...destination.Memo) destination.Session {
	t.Helper()
	ctx := context.Background()
	var session destination.Session
	for _, m := range memos {
		var err error
		session, err = store.Prepare(ctx, m)
		gt.NoError(t, err)
		gt.NoError(t, store.Append(ctx, session, destination.NewEntry(m, "said "+m.Name)))
	}
	return session
}

func TestDailyNoteCreation(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("Morning", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))

	session, err := store.Prepare(context.Background(), m)
	gt.NoError(t, err)
	gt.Equal(t, filepath.Base(string(session)), "2025-01-30.md")
	gt.Equal(t, store.CacheKey(m), "2025-01-30")

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	content := string(data)
	gt.S(t, content).Contains("date: 2025-01-30\n")
	gt.S(t, content).Contains("type: voice-memo-transcript\n")
	gt.S(t, content).Contains("tags: [voice-memo]\n")
	gt.S(t, content).Contains("memo_count: 0\n")
	gt.S(t, content).Contains("\n---\n\n# Voice Memos - January 30, 2025\n\n")
	gt.S(t, content).NotContains("week:")

	gt.A(t, store.Created()).Length(1)
}

func TestMemoCountTracksAppends(t *testing.T) {
	store, _ := newStore(t, nil)
	base := time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local)

	const k = 3
	var memos []destination.Memo
	for i := 0; i < k; i++ {
		memos = append(memos, memoAt("memo"+string(rune('A'+i)), base.Add(time.Duration(i)*time.Hour)))
	}
	session := appendAll(t, store, memos...)

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	content := string(data)

	fm := frontmatter(t, content)
	gt.Equal(t, fm["memo_count"], k)
	gt.Equal(t, fm["type"], "voice-memo-transcript")
	gt.Equal[any](t, fm["tags"], []any{"voice-memo"})
	gt.Equal(t, strings.Count(content, "\n## memo"), k)
	gt.Equal(t, strings.Count(content, "memo_count:"), 1)

	// Entries stay in append order.
	gt.True(t, strings.Index(content, "## memoA") < strings.Index(content, "## memoB"))
	gt.True(t, strings.Index(content, "## memoB") < strings.Index(content, "## memoC"))
}

func TestMemoCountOnlyInFrontmatter(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))

	session, err := store.Prepare(context.Background(), m)
	gt.NoError(t, err)
	gt.NoError(t, store.Append(context.Background(), session, destination.NewEntry(m, "memo_count: 99 was said aloud")))
	gt.NoError(t, store.Append(context.Background(), session, destination.NewEntry(m, "again")))

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	fm := frontmatter(t, string(data))
	gt.Equal(t, fm["memo_count"], 2)
	gt.S(t, string(data)).Contains("memo_count: 99 was said aloud")
}

func TestExistingNoteKeepsUserFields(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	path := filepath.Join(store.Folder(), "2025-01-30.md")
	existing := "---\ndate: 2025-01-30\naliases: [thursday]\nmemo_count: 7\nreviewed: true\n---\n\n# My notes\n\nhand written\n\n"
	gt.NoError(t, os.WriteFile(path, []byte(existing), 0644))

	appendAll(t, store, m)

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	fm := frontmatter(t, string(data))
	gt.Equal(t, fm["memo_count"], 8)
	gt.Equal(t, fm["reviewed"], true)
	gt.Equal[any](t, fm["aliases"], []any{"thursday"})
	gt.S(t, string(data)).Contains("# My notes\n\nhand written\n\n---\n\n## memo\n")
	gt.A(t, store.Created()).Length(0)
}

func TestWeeklyNote(t *testing.T) {
	store, _ := newStore(t, func(c *config.ObsidianConfig) { c.OrganizeBy = obsidian.OrganizeWeekly })
	thursday := time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local)

	session := appendAll(t, store, memoAt("memo", thursday))
	gt.Equal(t, filepath.Base(string(session)), "2025-01-27 Week.md")
	gt.Equal(t, store.CacheKey(memoAt("x", thursday)), "2025-01-27")

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	fm := frontmatter(t, string(data))
	gt.Equal(t, fm["week"], "2025-W05")
	gt.S(t, string(data)).Contains("# Voice Memos - Week of January 27, 2025")
}

func TestMonthlyNote(t *testing.T) {
	store, _ := newStore(t, func(c *config.ObsidianConfig) { c.OrganizeBy = obsidian.OrganizeMonthly })
	session := appendAll(t, store, memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local)))
	gt.Equal(t, filepath.Base(string(session)), "2025-01 Month.md")
}

func TestTagNote(t *testing.T) {
	store, _ := newStore(t, func(c *config.ObsidianConfig) { c.OrganizeBy = obsidian.OrganizeByTag })

	tagged := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	tagged.Metadata = metadata.AudioMetadata{Title: "Ideas #project"}
	session := appendAll(t, store, tagged)
	gt.Equal(t, filepath.Base(string(session)), "#project.md")

	untagged := memoAt("plain", time.Date(2025, 1, 30, 9, 0, 0, 0, time.Local))
	session = appendAll(t, store, untagged)
	gt.Equal(t, filepath.Base(string(session)), "Untagged.md")
}

func TestEntryMetadataLines(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("20250130 081500", time.Date(2025, 1, 30, 8, 15, 0, 0, time.Local))
	m.Metadata = metadata.AudioMetadata{
		Title:    "Use `go test` \\ often",
		Duration: 204 * time.Second,
		Device:   "iPhone 15",
	}
	session := appendAll(t, store, m)

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	content := string(data)
	gt.S(t, content).Contains("## Use \\`go test\\` \\\\ often\n\n")
	gt.S(t, content).Contains("**Recorded:** 2025-01-30 08:15:00\n")
	gt.S(t, content).Contains("**Duration:** 3m 24s\n")
	gt.S(t, content).Contains("**Device:** iPhone 15\n")
	gt.S(t, content).Contains("\nsaid 20250130 081500\n\n")
}

func TestWithoutFrontmatterOrMetadata(t *testing.T) {
	store, _ := newStore(t, func(c *config.ObsidianConfig) {
		c.IncludeFrontmatter = false
		c.IncludeMetadata = false
	})
	m := memoAt("plain", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	m.Metadata = metadata.AudioMetadata{Title: "ignored", Duration: time.Minute}
	session := appendAll(t, store, m)

	data, err := os.ReadFile(string(session))
	gt.NoError(t, err)
	content := string(data)
	gt.True(t, strings.HasPrefix(content, "# Voice Memos - January 30, 2025\n\n---\n\n## plain\n"))
	gt.S(t, content).NotContains("memo_count")
	gt.S(t, content).NotContains("**Duration:**")
}

func TestValidateConfig(t *testing.T) {
	cfg := config.DefaultObsidian()
	cfg.VaultPath = t.TempDir()
	store, err := obsidian.New(cfg)
	gt.NoError(t, err)

	gt.True(t, errors.Is(store.ValidateConfig(), destination.ErrConfig))
	gt.True(t, errors.Is(store.Initialize(context.Background()), destination.ErrInit))

	cfg.VaultPath = filepath.Join(t.TempDir(), "missing")
	store, err = obsidian.New(cfg)
	gt.NoError(t, err)
	gt.True(t, errors.Is(store.ValidateConfig(), destination.ErrConfig))
}

func TestNewRejectsUnknownOrganize(t *testing.T) {
	cfg := config.DefaultObsidian()
	cfg.OrganizeBy = "hourly"
	_, err := obsidian.New(cfg)
	gt.True(t, errors.Is(err, destination.ErrConfig))
}

func TestCleanupPrintsFolder(t *testing.T) {
	store, out := newStore(t, nil)
	store.Cleanup(context.Background())
	gt.S(t, out.String()).Contains(store.Folder())
	gt.S(t, out.String()).Contains("Obsidian vault")
}

func TestAppendRejectsForeignSession(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("m", time.Now())
	err := store.Append(context.Background(), destination.Session("/etc/passwd"), destination.NewEntry(m, "x"))
	gt.True(t, errors.Is(err, destination.ErrInvalidSession))
}

func TestMemoCountLeavesOtherBytesAlone(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	path := filepath.Join(store.Folder(), "2025-01-30.md")

	before := "---\n" +
		"date:   2025-01-30\n" +
		"aliases:\n" +
		"    - thursday   # my alias\n" +
		"nested:\n" +
		"  memo_count: 41\n" +
		"memo_count: 7\n" +
		"title: 'quoted'   \n" +
		"---\n\n# My notes\n\n"
	gt.NoError(t, os.WriteFile(path, []byte(before), 0644))

	appendAll(t, store, m)

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	want := strings.Replace(before, "\nmemo_count: 7\n", "\nmemo_count: 8\n", 1)
	gt.True(t, strings.HasPrefix(string(data), want))
	gt.S(t, string(data)).Contains("  memo_count: 41\n")
}

func TestMemoCountMissingIsNotAdded(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	path := filepath.Join(store.Folder(), "2025-01-30.md")
	before := "---\ndate: 2025-01-30\n---\n\n# Notes\n\n"
	gt.NoError(t, os.WriteFile(path, []byte(before), 0644))

	appendAll(t, store, m)

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(string(data), before))
	gt.S(t, string(data)).NotContains("memo_count")
}

func TestMemoCountWithCRLF(t *testing.T) {
	store, _ := newStore(t, nil)
	m := memoAt("memo", time.Date(2025, 1, 30, 8, 0, 0, 0, time.Local))
	path := filepath.Join(store.Folder(), "2025-01-30.md")
	before := "---\r\ndate: 2025-01-30\r\nmemo_count: 2\r\n---\r\n\r\n# Notes\r\n"
	gt.NoError(t, os.WriteFile(path, []byte(before), 0644))

	appendAll(t, store, m)

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	want := "---\r\ndate: 2025-01-30\r\nmemo_count: 3\r\n---\r\n\r\n# Notes\r\n"
	gt.True(t, strings.HasPrefix(string(data), want))
}

func TestAppendRejectsSiblingFolder(t *testing.T) {
	store, _ := newStore(t, nil)
	sibling := store.Folder() + "2"
	gt.NoError(t, os.MkdirAll(sibling, 0755))
	path := filepath.Join(sibling, "2025-01-30.md")
	gt.NoError(t, os.WriteFile(path, []byte("# other\n"), 0644))

	m := memoAt("m", time.Now())
	err := store.Append(context.Background(), destination.Session(path), destination.NewEntry(m, "x"))
	gt.True(t, errors.Is(err, destination.ErrInvalidSession))

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "# other\n")
}
