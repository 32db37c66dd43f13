package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/ledger"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/m-mizutani/goerr/v2"
)

// Item is a recording waiting to be processed.
type Item struct {
	Path    string
	Name    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// Discover lists recordings under root matching any of patterns that the
// ledger has not seen, oldest first. A missing root yields no items.
func Discover(ctx context.Context, root string, patterns []string, l *ledger.Ledger) ([]Item, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "cannot read voice memos folder", goerr.V("path", root))
	}

	fsys := os.DirFS(root)
	seen := map[string]bool{}
	var items []Item
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, goerr.Wrap(doublestar.ErrBadPattern, "invalid discovery pattern", goerr.V("pattern", pattern))
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, goerr.Wrap(err, "invalid discovery pattern", goerr.V("pattern", pattern))
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true

			path := filepath.Join(root, filepath.FromSlash(m))
			hash, info, err := ledger.HashFile(path)
			if err != nil {
				// Removed between glob and stat.
				continue
			}
			done, err := l.Has(ctx, hash)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}
			items = append(items, Item{
				Path:    path,
				Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Hash:    hash,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ModTime.Equal(items[j].ModTime) {
			return items[i].Path < items[j].Path
		}
		return items[i].ModTime.Before(items[j].ModTime)
	})
	return items, nil
}
