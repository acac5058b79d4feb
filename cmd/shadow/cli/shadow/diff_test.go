package shadow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/entireio/shadow/cmd/shadow/cli/testutil"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_FreshWorkspaceIsEmpty(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	testutil.WriteFile(t, env.workspace, "a.txt", "a")
	testutil.WriteFile(t, env.workspace, "dir/b.txt", "b")

	e := initEngine(t, env.options(testTaskID, ModeTask))

	diffs, err := e.Diff(context.Background(), DiffOptions{})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiff_AgainstLiveWorkspace(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	testutil.WriteFile(t, env.workspace, "a.txt", "before")
	testutil.WriteFile(t, env.workspace, "gone.txt", "bye")

	e := initEngine(t, env.options(testTaskID, ModeTask))

	testutil.WriteFile(t, env.workspace, "a.txt", "after")
	testutil.WriteFile(t, env.workspace, "new/c.txt", "fresh")
	testutil.RemoveFile(t, env.workspace, "gone.txt")
	testutil.WriteFile(t, env.workspace, "ignored.log", "excluded")

	diffs, err := e.Diff(context.Background(), DiffOptions{})
	require.NoError(t, err)

	require.Equal(t, []FileDiff{
		{RelativePath: "a.txt", AbsolutePath: filepath.Join(env.workspace, "a.txt"), Before: "before", After: "after"},
		{RelativePath: "gone.txt", AbsolutePath: filepath.Join(env.workspace, "gone.txt"), Before: "bye", After: ""},
		{RelativePath: "new/c.txt", AbsolutePath: filepath.Join(env.workspace, "new", "c.txt"), Before: "", After: "fresh"},
	}, diffs)
}

func TestDiff_BetweenCheckpoints(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	e := initEngine(t, env.options(testTaskID, ModeTask))

	testutil.WriteFile(t, env.workspace, "a.txt", "v1")
	c1, err := e.SaveCheckpoint(ctx, "c1", SaveOptions{})
	require.NoError(t, err)
	testutil.WriteFile(t, env.workspace, "a.txt", "v2")
	testutil.WriteFile(t, env.workspace, "b.txt", "b")
	c2, err := e.SaveCheckpoint(ctx, "c2", SaveOptions{})
	require.NoError(t, err)

	// Uncommitted edits must not leak into a checkpoint-to-checkpoint diff
	testutil.WriteFile(t, env.workspace, "a.txt", "v3")

	first, err := e.Diff(ctx, DiffOptions{From: c1.Hash, To: c2.Hash})
	require.NoError(t, err)
	second, err := e.Diff(ctx, DiffOptions{From: c1.Hash, To: c2.Hash})
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated diffs with the same arguments must match")

	require.Len(t, first, 2)
	assert.Equal(t, FileDiff{RelativePath: "a.txt", AbsolutePath: filepath.Join(env.workspace, "a.txt"), Before: "v1", After: "v2"}, first[0])
	assert.Equal(t, "b.txt", first[1].RelativePath)
	assert.Empty(t, first[1].Before)
	assert.Equal(t, "b", first[1].After)

	// Without From, the root commit is the starting point
	fromRoot, err := e.Diff(ctx, DiffOptions{To: c1.Hash})
	require.NoError(t, err)
	require.Len(t, fromRoot, 1)
	assert.Equal(t, "v0", fromRoot[0].Before)
	assert.Equal(t, "v1", fromRoot[0].After)
}

func TestDiff_UnknownRevision(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)

	e := initEngine(t, env.options(testTaskID, ModeTask))

	_, err := e.Diff(context.Background(), DiffOptions{From: "not-a-revision"})
	require.ErrorIs(t, err, ErrUnknownCheckpoint)
	assert.Contains(t, err.Error(), "not-a-revision")
}

func TestDiff_SkipsUnreadableBlob(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	testutil.WriteFile(t, env.workspace, "a.txt", "before-a")
	testutil.WriteFile(t, env.workspace, "b.txt", "before-b")

	e := initEngine(t, env.options(testTaskID, ModeTask))
	testutil.WriteFile(t, env.workspace, "a.txt", "after-a")
	testutil.WriteFile(t, env.workspace, "b.txt", "after-b")

	lost := plumbing.ComputeHash(plumbing.BlobObject, []byte("before-a")).String()
	require.NoError(t, os.Remove(filepath.Join(e.StorageDir(), ".git", "objects", lost[:2], lost[2:])))

	diffs, err := e.Diff(context.Background(), DiffOptions{})
	require.NoError(t, err)
	require.Equal(t, []FileDiff{
		{RelativePath: "b.txt", AbsolutePath: filepath.Join(env.workspace, "b.txt"), Before: "before-b", After: "after-b"},
	}, diffs)
}

func TestDiff_SymlinkShowsTarget(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	outside := t.TempDir()
	oldTarget := filepath.Join(outside, "old.txt")
	newTarget := filepath.Join(outside, "new.txt")
	require.NoError(t, os.WriteFile(oldTarget, []byte("old content"), 0o600))
	require.NoError(t, os.WriteFile(newTarget, []byte("new content"), 0o600))

	link := filepath.Join(env.workspace, "link")
	if err := os.Symlink(oldTarget, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	e := initEngine(t, env.options(testTaskID, ModeTask))
	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(newTarget, link))

	diffs, err := e.Diff(context.Background(), DiffOptions{})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, "link", diffs[0].RelativePath)
	assert.Equal(t, filepath.ToSlash(oldTarget), diffs[0].Before)
	assert.Equal(t, filepath.ToSlash(newTarget), diffs[0].After)
}
