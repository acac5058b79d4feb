package nested

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// WalkSearcher searches the file system directly with doublestar globs.
type WalkSearcher struct{}

// Search walks root once per pattern. Unreadable directories are skipped.
func (WalkSearcher) Search(ctx context.Context, patterns []string, root string) ([]Match, error) {
	fsys := os.DirFS(root)

	var out []Match
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid search pattern %q", pattern)
		}
		err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err //nolint:wrapcheck // propagated as-is to stop the walk
			}
			t := TypeFile
			if d.IsDir() {
				t = TypeFolder
			}
			out = append(out, Match{Path: p, Type: t})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("searching %s for %s: %w", root, pattern, err)
		}
	}
	return out, nil
}
