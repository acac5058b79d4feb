package excludes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatterns_FixedGroupsFirst(t *testing.T) {
	t.Parallel()

	got := Patterns(t.TempDir())

	require.NotEmpty(t, got)
	assert.Equal(t, ".git/", got[0], "the shadow repository's own metadata is always excluded first")
	assert.Contains(t, got, "node_modules/")
	assert.Contains(t, got, "*.png")
	assert.Contains(t, got, "*.sqlite")
	assert.Contains(t, got, "*.log")
}

func TestPatterns_NoDuplicates(t *testing.T) {
	t.Parallel()

	got := Patterns(t.TempDir(), "*.log", "custom/")

	seen := map[string]bool{}
	for _, p := range got {
		assert.False(t, seen[p], "duplicate pattern %q", p)
		seen[p] = true
	}
	assert.Equal(t, "custom/", got[len(got)-1])
}

func TestPatterns_IncludesLFS(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	attrs := strings.Join([]string{
		"*.psd filter=lfs diff=lfs merge=lfs -text",
		"assets/models/** filter=lfs diff=lfs merge=lfs -text",
		"*.md text",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitattributes"), []byte(attrs), 0o600))

	lfs := LFSPatterns(dir)
	assert.Equal(t, []string{"*.psd", "assets/models/**"}, lfs)

	got := Patterns(dir, "extra/")
	assert.Contains(t, got, "assets/models/**")
	assert.NotContains(t, got, "*.md")
	assert.Equal(t, "extra/", got[len(got)-1])
}

func TestLFSPatterns_MissingFileIsNotFatal(t *testing.T) {
	t.Parallel()
	assert.Nil(t, LFSPatterns(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestWriteFile_Atomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "info", "exclude")

	require.NoError(t, WriteFile(path, []string{".git/", "*.log"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ".git/\n*.log\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not be left behind")

	// Rewriting replaces the content entirely
	require.NoError(t, WriteFile(path, []string{"only/"}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "only/\n", string(data))
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	m := Matcher([]string{"node_modules/", "*.log", "build/dependencies/"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"node_modules/pkg/.git/HEAD", false, true},
		{"src/node_modules/x/.git/HEAD", false, true},
		{"debug.log", false, true},
		{"build/dependencies/lib/.git", true, true},
		{"build/out/.git/HEAD", false, false},
		{"src/lib/.git/HEAD", false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Excluded(m, tt.path, tt.isDir), tt.path)
	}
}
