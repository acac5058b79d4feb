// Package excludes builds the ignore patterns written to a shadow
// repository's info/exclude file.
package excludes

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitattributes"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Fixed infrastructure exclusions, in the order they are written.
var (
	buildArtifacts = []string{
		".git/",
		"node_modules/",
		"__pycache__/",
		"env/",
		"venv/",
		".venv/",
		"target/dependency/",
		"build/dependencies/",
		"dist/",
		"out/",
		"bundle/",
		"vendor/",
		"tmp/",
		"temp/",
		"deps/",
		"pkg/",
		"Pods/",
	}

	mediaFiles = []string{
		"*.jpg",
		"*.jpeg",
		"*.png",
		"*.gif",
		"*.bmp",
		"*.ico",
		"*.webp",
		"*.tiff",
		"*.tif",
		"*.raw",
		"*.heic",
		"*.avif",
		"*.eps",
		"*.psd",
		"*.3gp",
		"*.aac",
		"*.aiff",
		"*.asf",
		"*.avi",
		"*.divx",
		"*.flac",
		"*.m4a",
		"*.m4v",
		"*.mkv",
		"*.mov",
		"*.mp3",
		"*.mp4",
		"*.mpeg",
		"*.mpg",
		"*.ogg",
		"*.opus",
		"*.rm",
		"*.rmvb",
		"*.vob",
		"*.wav",
		"*.webm",
		"*.wma",
		"*.wmv",
	}

	cacheFiles = []string{
		"*.DS_Store",
		"*.bak",
		"*.cache",
		"*.crdownload",
		"*.dmp",
		"*.dump",
		"*.eslintcache",
		"*.lock",
		"*.log",
		"*.old",
		"*.part",
		"*.partial",
		"*.pyc",
		"*.pyo",
		"*.stackdump",
		"*.swo",
		"*.swp",
		"*.temp",
		"*.tmp",
		"*.Thumbs.db",
	}

	configFiles = []string{
		"*.env*",
		"*.local",
		"*.development",
		"*.production",
	}

	largeDataFiles = []string{
		"*.zip",
		"*.tar",
		"*.gz",
		"*.rar",
		"*.7z",
		"*.iso",
		"*.bin",
		"*.exe",
		"*.dll",
		"*.so",
		"*.dylib",
		"*.dat",
		"*.dmg",
		"*.msi",
	}

	databaseFiles = []string{
		"*.arrow",
		"*.accdb",
		"*.aof",
		"*.avro",
		"*.bak",
		"*.bson",
		"*.csv",
		"*.db",
		"*.dbf",
		"*.dmp",
		"*.frm",
		"*.ibd",
		"*.mdb",
		"*.myd",
		"*.myi",
		"*.orc",
		"*.parquet",
		"*.pdb",
		"*.rdb",
		"*.sql",
		"*.sqlite",
	}

	geospatialFiles = []string{
		"*.shp",
		"*.shx",
		"*.dbf",
		"*.prj",
		"*.sbn",
		"*.sbx",
		"*.shp.xml",
		"*.cpg",
		"*.gdb",
		"*.mdb",
		"*.gpkg",
		"*.kml",
		"*.kmz",
		"*.gml",
		"*.geojson",
		"*.dem",
		"*.asc",
		"*.img",
		"*.ecw",
		"*.las",
		"*.laz",
		"*.mxd",
		"*.qgs",
		"*.grd",
		"*.csv",
		"*.dwg",
		"*.dxf",
	}

	logFiles = []string{
		"*.error",
		"*.log",
		"*.logs",
		"*.npm-debug.log*",
		"*.out",
		"*.stdout",
		"yarn-debug.log*",
		"yarn-error.log*",
	}
)

// Patterns returns the ordered exclude patterns for a workspace: the fixed
// infrastructure groups, then Git LFS patterns declared in the workspace's
// .gitattributes, then extra. Duplicates keep their first position.
// A missing or unreadable .gitattributes only drops the LFS group.
func Patterns(workspaceDir string, extra ...string) []string {
	groups := [][]string{
		buildArtifacts,
		mediaFiles,
		cacheFiles,
		configFiles,
		largeDataFiles,
		databaseFiles,
		geospatialFiles,
		logFiles,
		LFSPatterns(workspaceDir),
		extra,
	}

	seen := make(map[string]struct{})
	var out []string
	for _, g := range groups {
		for _, p := range g {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// LFSPatterns returns the patterns in <workspaceDir>/.gitattributes whose
// attributes route them through the LFS filter. Returns nil when the file is
// missing or cannot be parsed.
func LFSPatterns(workspaceDir string) []string {
	data, err := os.ReadFile(filepath.Join(workspaceDir, ".gitattributes")) //nolint:gosec // path is workspace-relative
	if err != nil {
		return nil
	}

	attrs, err := gitattributes.ReadAttributes(bytes.NewReader(data), nil, true)
	if err != nil {
		return nil
	}

	var out []string
	for _, ma := range attrs {
		if ma.Name == "" {
			continue
		}
		for _, a := range ma.Attributes {
			if a.Name() == "filter" && a.IsValueSet() && a.Value() == "lfs" {
				out = append(out, ma.Name)
				break
			}
		}
	}
	return out
}

// WriteFile writes patterns to path, one per line, atomically. The parent
// directory is created if needed.
func WriteFile(path string, patterns []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create exclude directory: %w", err)
	}

	var buf bytes.Buffer
	for _, p := range patterns {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}

	// Atomic write: temp file + rename
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write exclude file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename exclude file: %w", err)
	}
	return nil
}

// Matcher compiles patterns into a gitignore matcher rooted at the workspace.
func Matcher(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(ps)
}

// Excluded reports whether the slash-separated workspace-relative path rel is
// excluded by m. Each parent directory is checked too, since a pattern such
// as "node_modules/" only matches the directory itself.
func Excluded(m gitignore.Matcher, rel string, isDir bool) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i <= len(parts); i++ {
		dir := i < len(parts) || isDir
		if m.Match(parts[:i], dir) {
			return true
		}
	}
	return false
}
