package nested

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/entireio/shadow/cmd/shadow/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	matches []Match
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ []string, _ string) ([]Match, error) {
	f.calls++
	return f.matches, f.err
}

func TestFind_IgnoresWorkspaceOwnRepository(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{matches: []Match{{Path: ".git/HEAD", Type: TypeFile}}}
	_, found := NewDetector(s, nil).Find(context.Background(), "/work")

	assert.False(t, found)
	assert.Equal(t, 1, s.calls)
}

func TestFind_ReturnsFirstInLexicalOrder(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{matches: []Match{
		{Path: "zeta/.git/HEAD", Type: TypeFile},
		{Path: "libs/alpha/.git/HEAD", Type: TypeFile},
		{Path: "libs/.git/HEAD", Type: TypeFolder},
	}}

	got, found := NewDetector(s, nil).Find(context.Background(), "/work")

	require.True(t, found)
	assert.Equal(t, filepath.Join("/work", "libs", "alpha"), got)
}

func TestFind_SkipsExcludedTrees(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{matches: []Match{
		{Path: "node_modules/pkg/.git/HEAD", Type: TypeFile},
	}}

	_, found := NewDetector(s, []string{".git/", "node_modules/"}).Find(context.Background(), "/work")
	assert.False(t, found)
}

func TestFind_SearchFailureMeansNone(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{err: errors.New("ripgrep crashed")}
	got, found := NewDetector(s, nil).Find(context.Background(), "/work")

	assert.False(t, found)
	assert.Empty(t, got)
}

func TestWalkSearcher_FindsNestedHeads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	testutil.WriteFile(t, dir, ".git/HEAD", "ref: refs/heads/main\n")
	testutil.WriteFile(t, dir, "sub/repo/.git/HEAD", "ref: refs/heads/main\n")
	testutil.WriteFile(t, dir, "sub/plain/file.txt", "hello")

	matches, err := WalkSearcher{}.Search(context.Background(), []string{HeadPattern}, dir)
	require.NoError(t, err)

	var paths []string
	for _, m := range matches {
		paths = append(paths, m.Path)
		assert.Equal(t, TypeFile, m.Type)
	}
	assert.ElementsMatch(t, []string{".git/HEAD", "sub/repo/.git/HEAD"}, paths)

	got, found := NewDetector(nil, nil).Find(context.Background(), dir)
	require.True(t, found)
	assert.Equal(t, filepath.Join(dir, "sub", "repo"), got)
}

func TestWalkSearcher_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := WalkSearcher{}.Search(context.Background(), []string{"[unclosed"}, t.TempDir())
	require.Error(t, err)
}
