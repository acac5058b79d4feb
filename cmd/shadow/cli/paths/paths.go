package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StorageDirEnvVar overrides the global storage root.
const StorageDirEnvVar = "SHADOW_STORAGE_DIR"

// Directory constants, relative to the storage root
const (
	TasksDir       = "tasks"
	CheckpointsDir = "checkpoints"
	LogsDir        = "logs"
)

// Files inside the storage root
const (
	SettingsFileName      = "settings.json"
	SettingsLocalFileName = "settings.local.json"
)

// ShadowGitDirName is the metadata directory of a shadow repository, inside its storage dir.
const ShadowGitDirName = ".git"

// TaskBranchPrefix prefixes the branch that isolates one task's history inside
// a shadow repository shared by every task of a workspace.
const TaskBranchPrefix = "shadow-"

// DroppedRefPrefix prefixes the refs that keep commits reachable after a
// restore moves a branch behind them.
const DroppedRefPrefix = "refs/shadow/dropped/"

// WorkspaceHashLength is the number of hex characters of the workspace hash
// used in per-workspace storage directory names.
const WorkspaceHashLength = 8

// DefaultStorageRoot returns the global storage root.
// SHADOW_STORAGE_DIR wins; otherwise <user config dir>/shadow.
func DefaultStorageRoot() (string, error) {
	if override := os.Getenv(StorageDirEnvVar); override != "" {
		return filepath.Abs(override)
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "shadow"), nil
}

// TaskCheckpointsDir returns the storage dir of a shadow repository owned by a single task.
func TaskCheckpointsDir(storageRoot, taskID string) string {
	return filepath.Join(storageRoot, TasksDir, taskID, CheckpointsDir)
}

// WorkspaceCheckpointsDir returns the storage dir of the shadow repository
// shared by every task working in workspaceDir.
func WorkspaceCheckpointsDir(storageRoot, workspaceDir string) string {
	return filepath.Join(storageRoot, CheckpointsDir, HashWorkspaceDir(workspaceDir))
}

// HashWorkspaceDir returns a short, stable hash of a workspace path.
func HashWorkspaceDir(workspaceDir string) string {
	sum := sha256.Sum256([]byte(workspaceDir))
	return hex.EncodeToString(sum[:])[:WorkspaceHashLength]
}

// GitDir returns the metadata directory of the shadow repository stored in storageDir.
func GitDir(storageDir string) string {
	return filepath.Join(storageDir, ShadowGitDirName)
}

// ExcludeFile returns the path of the shadow repository's exclude file.
func ExcludeFile(storageDir string) string {
	return filepath.Join(storageDir, ShadowGitDirName, "info", "exclude")
}

// LogsPath returns the directory log files are written to.
func LogsPath(storageRoot string) string {
	return filepath.Join(storageRoot, LogsDir)
}

// TaskBranchName returns the branch name used for a task in a shared shadow repository.
func TaskBranchName(taskID string) string {
	return TaskBranchPrefix + taskID
}

// DroppedRefNamespace returns the ref namespace holding a task's dropped tips.
func DroppedRefNamespace(taskID string) string {
	return DroppedRefPrefix + taskID + "/"
}

// NormalizeDir returns the absolute, cleaned form of dir.
func NormalizeDir(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return filepath.Clean(abs), nil
}

// ProtectedDirs returns the directories that must never be used as a workspace:
// the home directory itself and its Desktop, Documents and Downloads folders.
func ProtectedDirs(homeDir string) []string {
	if homeDir == "" {
		return nil
	}
	home := filepath.Clean(homeDir)
	return []string{
		home,
		filepath.Join(home, "Desktop"),
		filepath.Join(home, "Documents"),
		filepath.Join(home, "Downloads"),
	}
}

// IsProtectedDir reports whether dir is one of ProtectedDirs(homeDir).
func IsProtectedDir(dir, homeDir string) bool {
	clean := filepath.Clean(dir)
	for _, p := range ProtectedDirs(homeDir) {
		if clean == p {
			return true
		}
	}
	return false
}

// ToRelativePath converts an absolute path to one relative to root.
// Returns empty string if the path is outside root.
func ToRelativePath(absPath, root string) string {
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	relPath, err := filepath.Rel(root, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return ""
	}
	return relPath
}
