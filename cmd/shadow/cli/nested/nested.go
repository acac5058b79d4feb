// Package nested detects git repositories embedded inside a workspace.
//
// A shadow repository cannot reliably stage a subtree that is itself a
// separate repository, so initialization refuses such workspaces.
package nested

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/entireio/shadow/cmd/shadow/cli/excludes"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// HeadPattern matches the HEAD marker of every repository under a root.
const HeadPattern = "**/.git/HEAD"

// EntryType distinguishes files from folders in search results.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeFolder
)

// Match is one search result. Path is relative to the search root and
// slash-separated.
type Match struct {
	Path string
	Type EntryType
}

// Searcher finds entries under root matching any of the glob patterns.
type Searcher interface {
	Search(ctx context.Context, patterns []string, root string) ([]Match, error)
}

// Detector finds nested repositories in a workspace.
type Detector struct {
	searcher Searcher
	matcher  gitignore.Matcher
}

// NewDetector creates a detector. A nil searcher uses WalkSearcher.
// Candidates under paths matched by excludePatterns are ignored.
func NewDetector(searcher Searcher, excludePatterns []string) *Detector {
	if searcher == nil {
		searcher = WalkSearcher{}
	}
	d := &Detector{searcher: searcher}
	if len(excludePatterns) > 0 {
		d.matcher = excludes.Matcher(withoutGitDir(excludePatterns))
	}
	return d
}

// withoutGitDir drops ".git/" so the matcher does not hide the very markers
// being searched for.
func withoutGitDir(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == ".git/" || p == ".git" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Find returns the absolute path of the first nested repository under
// workspaceDir in lexical order, and whether one was found. The workspace's
// own .git is not a nested repository. A failing search is logged and
// reported as no match.
func (d *Detector) Find(ctx context.Context, workspaceDir string) (string, bool) {
	ctx = logging.WithComponent(ctx, "nested")

	matches, err := d.searcher.Search(ctx, []string{HeadPattern}, workspaceDir)
	if err != nil {
		logging.Warn(ctx, "nested repository search failed, continuing without detection",
			slog.String("workspace", workspaceDir),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	var repos []string
	for _, m := range matches {
		if m.Type != TypeFile {
			continue
		}
		rel := path.Clean(filepath.ToSlash(m.Path))
		if !strings.HasSuffix(rel, "/.git/HEAD") {
			// Only "<dir>/.git/HEAD" is nested; the root's own marker is ".git/HEAD".
			continue
		}
		repoRel := strings.TrimSuffix(rel, "/.git/HEAD")
		if d.matcher != nil && excludes.Excluded(d.matcher, repoRel, true) {
			continue
		}
		repos = append(repos, repoRel)
	}
	if len(repos) == 0 {
		return "", false
	}

	sort.Strings(repos)
	found := filepath.Join(workspaceDir, filepath.FromSlash(repos[0]))
	logging.Debug(ctx, "nested repository detected", slog.String("path", found))
	return found, true
}
