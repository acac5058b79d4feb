package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/retry"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// DiffOptions select the revisions to compare.
type DiffOptions struct {
	// From defaults to the repository's root commit. In workspace mode with
	// To set, it defaults to To's parent.
	From string
	// To defaults to the live workspace.
	To string
}

// FileDiff is one changed file.
type FileDiff struct {
	// RelativePath is slash-separated and relative to the workspace.
	RelativePath string
	AbsolutePath string
	// Before is the content at From, "" if the file did not exist.
	Before string
	// After is the content at To or on disk, "" if the file does not exist
	// or cannot be read.
	After string
}

// Diff compares two checkpoints, or a checkpoint against the live workspace.
// Results are sorted by path. A file whose content cannot be read is logged
// and left out rather than failing the whole diff.
func (e *Engine) Diff(ctx context.Context, opts DiffOptions) ([]FileDiff, error) {
	repo, err := e.ready()
	if err != nil {
		return nil, err
	}
	ctx = e.logCtx(ctx)

	if e.mode == ModeWorkspace {
		if _, err := e.checkoutTaskBranch(ctx, repo); err != nil {
			return nil, err
		}
	}

	from := opts.From
	if from == "" {
		if from, err = e.defaultFrom(repo, opts.To); err != nil {
			return nil, err
		}
	}

	// Stage first so untracked files take part in the comparison
	if err := e.stageAll(ctx); err != nil {
		return nil, err
	}

	fromCommit, err := resolveCommit(repo, from)
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", from, err)
	}

	var toTree *object.Tree
	if opts.To != "" {
		toCommit, err := resolveCommit(repo, opts.To)
		if err != nil {
			return nil, err
		}
		if toTree, err = toCommit.Tree(); err != nil {
			return nil, fmt.Errorf("failed to read tree of %s: %w", opts.To, err)
		}
	} else {
		if toTree, err = e.indexTree(ctx, repo); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, &object.DiffTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", from, err)
	}

	out := make([]FileDiff, 0, len(changes))
	for _, ch := range changes {
		fd, err := e.fileDiff(ch, opts.To == "")
		if err != nil {
			logging.Warn(ctx, "skipping unreadable file in diff",
				slog.String("path", changePath(ch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, fd)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// defaultFrom picks the base of a diff when none is given: To's first parent
// in workspace mode, the root commit otherwise. A parentless To is compared
// with itself.
func (e *Engine) defaultFrom(repo *git.Repository, to string) (string, error) {
	if e.mode == ModeWorkspace && to != "" {
		c, err := resolveCommit(repo, to)
		if err != nil {
			return "", err
		}
		if c.NumParents() == 0 {
			return c.Hash.String(), nil
		}
		return c.ParentHashes[0].String(), nil
	}
	root, err := rootCommit(repo)
	if err != nil {
		return "", err
	}
	return root.String(), nil
}

// indexTree writes the staged index as a tree and returns it.
func (e *Engine) indexTree(ctx context.Context, repo *git.Repository) (*object.Tree, error) {
	treeHash, err := retry.Value(ctx, e.retry, "write-tree", func(ctx context.Context) (string, error) {
		return e.git.Run(ctx, "write-tree") //nolint:wrapcheck // wrapped by retry.Value
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by retry.Value
	}
	tree, err := repo.TreeObject(plumbing.NewHash(treeHash))
	if err != nil {
		return nil, fmt.Errorf("failed to read index tree %s: %w", treeHash, err)
	}
	return tree, nil
}

func (e *Engine) fileDiff(ch *object.Change, live bool) (FileDiff, error) {
	rel := changePath(ch)
	abs := filepath.Join(e.workspaceDir, filepath.FromSlash(rel))

	before, after, err := ch.Files()
	if err != nil {
		return FileDiff{}, fmt.Errorf("reading blobs: %w", err)
	}

	fd := FileDiff{RelativePath: rel, AbsolutePath: abs}
	if before != nil {
		if fd.Before, err = before.Contents(); err != nil {
			return FileDiff{}, fmt.Errorf("reading previous content: %w", err)
		}
	}

	if live {
		fd.After = readFileOrEmpty(abs)
		return fd, nil
	}
	if after != nil {
		if fd.After, err = after.Contents(); err != nil {
			return FileDiff{}, fmt.Errorf("reading new content: %w", err)
		}
	}
	return fd, nil
}

func changePath(ch *object.Change) string {
	if ch.To.Name != "" {
		return ch.To.Name
	}
	return ch.From.Name
}

// readFileOrEmpty returns what git would store for path: the target of a
// symlink, the content of anything else.
func readFileOrEmpty(path string) string {
	info, err := os.Lstat(path)
	if err != nil {
		return ""
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return ""
		}
		return filepath.ToSlash(target)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the workspace
	if err != nil {
		return ""
	}
	return string(data)
}

// rootCommit returns the first commit reachable from HEAD that has no parents.
func rootCommit(repo *git.Repository) (plumbing.Hash, error) {
	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read shadow repository HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to walk shadow history: %w", err)
	}
	defer iter.Close()

	root := plumbing.ZeroHash
	err = iter.ForEach(func(c *object.Commit) error {
		if c.NumParents() == 0 {
			root = c.Hash
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to walk shadow history: %w", err)
	}
	if root.IsZero() {
		return plumbing.ZeroHash, errors.New("shadow repository has no root commit")
	}
	return root, nil
}
