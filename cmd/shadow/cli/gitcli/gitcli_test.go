package gitcli

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/entireio/shadow/cmd/shadow/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stderr string
		want   Kind
	}{
		{
			name:   "index lock",
			stderr: "fatal: Unable to create '/tmp/x/.git/index.lock': File exists.",
			want:   KindIndexLocked,
		},
		{
			name:   "another process",
			stderr: "Another git process seems to be running in this repository",
			want:   KindIndexLocked,
		},
		{
			name:   "ref lock",
			stderr: "error: cannot lock ref: Unable to create 'refs/heads/main.lock': File exists",
			want:   KindIndexLocked,
		},
		{
			name:   "not a repository",
			stderr: "fatal: not a git repository (or any of the parent directories): .git",
			want:   KindNotRepository,
		},
		{
			name:   "unknown revision",
			stderr: "fatal: ambiguous argument 'abc': unknown revision or path not in the working tree.",
			want:   KindUnknownRevision,
		},
		{
			name:   "invalid object",
			stderr: "fatal: Not a valid object name deadbeef",
			want:   KindUnknownRevision,
		},
		{
			name:   "other",
			stderr: "fatal: something else went wrong",
			want:   KindOther,
		},
		{
			name:   "file exists without lock",
			stderr: "error: file exists",
			want:   KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classify(tt.stderr))
		})
	}
}

func TestCommandError_Is(t *testing.T) {
	t.Parallel()

	err := error(&CommandError{Args: []string{"add"}, Stderr: "index.lock", Kind: KindIndexLocked})
	wrapped := errors.Join(errors.New("staging"), err)

	assert.ErrorIs(t, wrapped, ErrIndexLocked)
	assert.NotErrorIs(t, wrapped, ErrNotRepository)
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestCommandError_Message(t *testing.T) {
	t.Parallel()

	err := &CommandError{Args: []string{"reset", "--hard"}, Stderr: "fatal: boom"}
	assert.Equal(t, "git reset --hard failed: fatal: boom", err.Error())
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"git version 2.39.2", "v2.39.2", true},
		{"git version 2.39.3 (Apple Git-146)", "v2.39.3", true},
		{"git version 2.45.1.windows.1", "v2.45.1", true},
		{"git version 2.40", "v2.40.0", true},
		{"hg version 6.0", "", false},
		{"git version", "", false},
		{"git version banana", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseVersion(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Parallel()

	env := sanitizedEnv([]string{"PATH=/bin", "GIT_DIR=/elsewhere", "GIT_WORK_TREE=/x", "HOME=/home/u"})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/home/u", "GIT_TERMINAL_PROMPT=0"}, env)
}

func TestBaseArgs(t *testing.T) {
	t.Parallel()

	r := New("/s/.git", "/w")
	assert.Equal(t, []string{"-c", "gc.auto=0", "-c", "core.quotepath=false", "--git-dir=/s/.git", "--work-tree=/w"}, r.baseArgs())

	bare := New("/s/.git", "")
	assert.NotContains(t, bare.baseArgs(), "--work-tree=")
	assert.Equal(t, "/d", bare.WithDir("/d").dir)
	assert.Empty(t, bare.dir, "WithDir must not mutate the receiver")
}

func TestRunner_AgainstRealRepository(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)

	ctx := context.Background()
	dir := testutil.TempWorkspace(t)
	gitDir := filepath.Join(dir, ".git")

	// Not a repository yet
	_, err := New(gitDir, dir).Run(ctx, "rev-parse", "HEAD")
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.NotZero(t, cmdErr.ExitCode)

	testutil.InitRepo(t, dir)
	r := New(gitDir, dir)

	exists, err := r.RefExists(ctx, "refs/heads/nope")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, r.ConfigSet(ctx, "shadow.test", "yes"))
	got, err := r.ConfigGet(ctx, "shadow.test")
	require.NoError(t, err)
	assert.Equal(t, "yes", got)

	require.NoError(t, r.ConfigUnset(ctx, "shadow.test"))
	require.NoError(t, r.ConfigUnset(ctx, "shadow.test"), "unsetting a missing key is not an error")
	got, err = r.ConfigGet(ctx, "shadow.test")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Run(ctx, "rev-parse", "--verify", "deadbeef^{commit}")
	require.Error(t, err)
}

func TestCheckVersion(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		require.ErrorIs(t, CheckVersion(context.Background()), ErrNotInstalled)
		return
	}
	require.NoError(t, CheckVersion(context.Background()))
}
