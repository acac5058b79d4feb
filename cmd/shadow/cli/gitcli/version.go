package gitcli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/mod/semver"
)

// MinVersion is the oldest git release with the flags shadow relies on.
const MinVersion = "v2.20.0"

// Version returns the installed git version in semver form, e.g. "v2.39.2".
func Version(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotInstalled, err)
	}
	out, err := New("", "").Run(ctx, "--version")
	if err != nil {
		return "", err
	}
	v, ok := ParseVersion(out)
	if !ok {
		return "", fmt.Errorf("unrecognized git version output %q", out)
	}
	return v, nil
}

// ParseVersion extracts a semver string from `git --version` output such as
// "git version 2.39.3 (Apple Git-146)" or "git version 2.45.1.windows.1".
func ParseVersion(output string) (string, bool) {
	fields := strings.Fields(output)
	if len(fields) < 3 || fields[0] != "git" || fields[1] != "version" {
		return "", false
	}
	parts := strings.Split(fields[2], ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v := "v" + strings.Join(parts, ".")
	if !semver.IsValid(v) {
		return "", false
	}
	return semver.Canonical(v), true
}

// CheckVersion verifies git is installed and at least MinVersion.
func CheckVersion(ctx context.Context) error {
	v, err := Version(ctx)
	if err != nil {
		return err
	}
	if semver.Compare(v, MinVersion) < 0 {
		return fmt.Errorf("git %s is older than the required %s", v, MinVersion)
	}
	return nil
}
