// Package validation provides input validation functions for the shadow CLI.
// This package has no dependencies to avoid import cycles.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// pathSafeRegex matches alphanumeric characters, underscores, dots and hyphens only.
// Used to validate IDs that end up in file paths and branch names.
var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// maxTaskIDLength keeps task branch names and storage paths reasonable.
const maxTaskIDLength = 128

// ValidateTaskID validates that a task ID is safe to use as a directory name
// and as part of a git branch name.
func ValidateTaskID(id string) error {
	if id == "" {
		return errors.New("task ID cannot be empty")
	}
	if len(id) > maxTaskIDLength {
		return fmt.Errorf("invalid task ID %q: longer than %d characters", id, maxTaskIDLength)
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("invalid task ID %q: must be alphanumeric with underscores/dots/hyphens only", id)
	}
	// git refuses these in branch names
	if id[0] == '.' || strings.Contains(id, "..") || strings.HasSuffix(id, ".lock") {
		return fmt.Errorf("invalid task ID %q: not usable in a git branch name", id)
	}
	return nil
}

// ValidateWorkspaceDir validates that a workspace path is usable as a shadow
// repository work tree.
func ValidateWorkspaceDir(dir string) error {
	if dir == "" {
		return errors.New("workspace directory cannot be empty")
	}
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("workspace directory %q must be an absolute path", dir)
	}
	return nil
}
