package shadow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headBranch(t *testing.T, storageDir string) string {
	t.Helper()
	out, err := gitcli.New(filepath.Join(storageDir, ".git"), "").Run(context.Background(), "symbolic-ref", "--short", "HEAD")
	require.NoError(t, err)
	return out
}

func deleteOptions(env testEnv, taskID string, mode Mode) DeleteTaskOptions {
	return DeleteTaskOptions{
		TaskID:           taskID,
		StorageRoot:      env.storageRoot,
		WorkspaceDir:     env.workspace,
		Mode:             mode,
		CheckoutTimeout:  2 * time.Second,
		CheckoutInterval: 10 * time.Millisecond,
	}
}

func TestWorkspaceMode_TasksShareRepositoryOnSeparateBranches(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	a := initEngine(t, env.options("task-a", ModeWorkspace))
	assert.Equal(t, "shadow-task-a", headBranch(t, a.StorageDir()))

	testutil.WriteFile(t, env.workspace, "a.txt", "from a")
	ca, err := a.SaveCheckpoint(ctx, "a1", SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Dispose())

	b := initEngine(t, env.options("task-b", ModeWorkspace))
	assert.Equal(t, a.StorageDir(), b.StorageDir())
	assert.Equal(t, "shadow-task-b", headBranch(t, b.StorageDir()))
	assert.Equal(t, ca.Hash, b.BaseHash(), "a new task branch starts at the current HEAD")

	testutil.WriteFile(t, env.workspace, "a.txt", "from b")
	cb, err := b.SaveCheckpoint(ctx, "b1", SaveOptions{})
	require.NoError(t, err)

	exists, err := gitcli.New(filepath.Join(b.StorageDir(), ".git"), "").RefExists(ctx, "refs/heads/shadow-task-a")
	require.NoError(t, err)
	assert.True(t, exists)

	// Diff with only To compares against its parent in workspace mode
	diffs, err := b.Diff(ctx, DiffOptions{To: cb.Hash})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, "from a", diffs[0].Before)
	assert.Equal(t, "from b", diffs[0].After)
}

func TestDeleteTask_WorkspaceModeCheckedOutBranch(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	e := initEngine(t, env.options("task-a", ModeWorkspace))
	testutil.WriteFile(t, env.workspace, "a.txt", "v1")
	_, err := e.SaveCheckpoint(ctx, "a1", SaveOptions{})
	require.NoError(t, err)
	storageDir := e.StorageDir()
	require.NoError(t, e.Dispose())

	require.NoError(t, DeleteTask(ctx, deleteOptions(env, "task-a", ModeWorkspace)))

	g := gitcli.New(filepath.Join(storageDir, ".git"), "")
	exists, err := g.RefExists(ctx, "refs/heads/shadow-task-a")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, "master", headBranch(t, storageDir))

	worktree, err := g.ConfigGet(ctx, "core.worktree")
	require.NoError(t, err)
	assert.Equal(t, env.workspace, worktree, "the work tree binding must be restored")
	assert.Equal(t, "v1", testutil.ReadFile(t, env.workspace, "a.txt"), "the user's workspace must not be touched")

	err = DeleteTask(ctx, deleteOptions(env, "task-a", ModeWorkspace))
	require.ErrorIs(t, err, ErrBranchNotFound)
}

func TestDiff_WorkspaceModeRootCommit(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	e := initEngine(t, env.options("task-a", ModeWorkspace))
	testutil.WriteFile(t, env.workspace, "a.txt", "v1")

	diffs, err := e.Diff(context.Background(), DiffOptions{To: e.BaseHash()})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDeleteTask_WorkspaceModeRemovesDroppedRefs(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	e := initEngine(t, env.options("task-a", ModeWorkspace))
	testutil.WriteFile(t, env.workspace, "a.txt", "v1")
	c1, err := e.SaveCheckpoint(ctx, "a1", SaveOptions{})
	require.NoError(t, err)
	testutil.WriteFile(t, env.workspace, "a.txt", "v2")
	c2, err := e.SaveCheckpoint(ctx, "a2", SaveOptions{})
	require.NoError(t, err)
	_, err = e.RestoreCheckpoint(ctx, c1.Hash)
	require.NoError(t, err)
	storageDir := e.StorageDir()
	require.NoError(t, e.Dispose())

	g := gitcli.New(filepath.Join(storageDir, ".git"), "")
	ref := "refs/shadow/dropped/task-a/" + c2.Hash
	exists, err := g.RefExists(ctx, ref)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, DeleteTask(ctx, deleteOptions(env, "task-a", ModeWorkspace)))

	exists, err = g.RefExists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteTask_WorkspaceModeOtherBranch(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	a := initEngine(t, env.options("task-a", ModeWorkspace))
	require.NoError(t, a.Dispose())
	b := initEngine(t, env.options("task-b", ModeWorkspace))
	require.NoError(t, b.Dispose())

	require.NoError(t, DeleteTask(ctx, deleteOptions(env, "task-a", ModeWorkspace)))
	assert.Equal(t, "shadow-task-b", headBranch(t, b.StorageDir()))
}

func TestDeleteTask_WorkspaceModeWithoutRepository(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := DeleteTask(context.Background(), deleteOptions(env, "task-a", ModeWorkspace))
	require.ErrorIs(t, err, ErrBranchNotFound)
}

func TestDeleteTask_TaskMode(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.WriteFile(t, env.workspace, "a.txt", "v0")

	e := initEngine(t, env.options(testTaskID, ModeTask))
	storageDir := e.StorageDir()
	require.NoError(t, e.Dispose())

	require.NoError(t, DeleteTask(ctx, deleteOptions(env, testTaskID, ModeTask)))
	_, err := os.Stat(storageDir)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "v0", testutil.ReadFile(t, env.workspace, "a.txt"))

	err = DeleteTask(ctx, deleteOptions(env, testTaskID, ModeTask))
	require.ErrorIs(t, err, ErrNoCheckpoints)
}
