package shadow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Commit is one entry of the shadow repository's durable history.
type Commit struct {
	Hash    string
	Message string
	When    time.Time
	// Tracked is true when the commit is the base or in the checkpoint list.
	Tracked bool
}

// History returns the commits reachable from HEAD and from the task's dropped
// tips, newest first. Unlike Checkpoints, it includes commits a restore
// dropped from the checkpoint list.
func (e *Engine) History(ctx context.Context) ([]Commit, error) {
	repo, err := e.ready()
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to read shadow repository HEAD: %w", err)
	}
	tips, err := droppedTips(repo, e.taskID)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]bool)
	tracked[e.BaseHash()] = true
	for _, h := range e.Checkpoints() {
		tracked[h] = true
	}

	seen := make(map[plumbing.Hash]bool)
	var out []Commit
	for _, tip := range append([]plumbing.Hash{head.Hash()}, tips...) {
		if seen[tip] {
			continue
		}
		iter, err := repo.Log(&git.LogOptions{From: tip})
		if err != nil {
			return nil, fmt.Errorf("failed to walk shadow history: %w", err)
		}
		err = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err //nolint:wrapcheck // propagated as-is to stop the walk
			}
			// Checkpoint history is linear, so everything past a seen commit is seen.
			if seen[c.Hash] {
				return storer.ErrStop
			}
			seen[c.Hash] = true
			out = append(out, Commit{
				Hash:    c.Hash.String(),
				Message: strings.TrimSpace(c.Message),
				When:    c.Committer.When,
				Tracked: tracked[c.Hash.String()],
			})
			return nil
		})
		iter.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to walk shadow history: %w", err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].When.After(out[j].When) })
	return out, nil
}

// droppedTips lists the commits kept under the task's dropped ref namespace.
func droppedTips(repo *git.Repository, taskID string) ([]plumbing.Hash, error) {
	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list shadow references: %w", err)
	}
	defer refs.Close()

	prefix := paths.DroppedRefNamespace(taskID)
	var tips []plumbing.Hash
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference && strings.HasPrefix(ref.Name().String(), prefix) {
			tips = append(tips, ref.Hash())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shadow references: %w", err)
	}
	return tips, nil
}
