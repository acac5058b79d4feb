package gitcli

import (
	"errors"
	"os/exec"
	"strings"
)

var (
	// ErrNotInstalled is returned when no git executable is on PATH.
	ErrNotInstalled = errors.New("git is not installed")

	// ErrIndexLocked is matched by failures caused by another git process
	// holding the index lock.
	ErrIndexLocked = errors.New("git index is locked")

	// ErrNotRepository is matched by failures against a directory that is
	// not a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrUnknownRevision is matched by failures naming a commit or ref that
	// does not exist.
	ErrUnknownRevision = errors.New("unknown revision")
)

// Kind classifies a git command failure.
type Kind int

const (
	KindOther Kind = iota
	KindIndexLocked
	KindNotRepository
	KindUnknownRevision
)

func (k Kind) String() string {
	switch k {
	case KindIndexLocked:
		return "index-locked"
	case KindNotRepository:
		return "not-repository"
	case KindUnknownRevision:
		return "unknown-revision"
	default:
		return "other"
	}
}

// CommandError is returned when git exits non-zero.
type CommandError struct {
	Args     []string
	Stderr   string
	ExitCode int
	Kind     Kind
	err      error
}

func newCommandError(args []string, stderr string, err error) *CommandError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	stderr = strings.TrimSpace(stderr)
	return &CommandError{
		Args:     args,
		Stderr:   stderr,
		ExitCode: code,
		Kind:     classify(stderr),
		err:      err,
	}
}

func (e *CommandError) Error() string {
	msg := "git " + strings.Join(e.Args, " ") + " failed"
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	if e.err != nil {
		return msg + ": " + e.err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.err }

// Is lets callers match a CommandError against the package sentinels.
func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrIndexLocked:
		return e.Kind == KindIndexLocked
	case ErrNotRepository:
		return e.Kind == KindNotRepository
	case ErrUnknownRevision:
		return e.Kind == KindUnknownRevision
	default:
		return false
	}
}

func classify(stderr string) Kind {
	lower := strings.ToLower(stderr)
	switch {
	case isLockMessage(lower):
		return KindIndexLocked
	case strings.Contains(lower, "not a git repository"):
		return KindNotRepository
	case strings.Contains(lower, "unknown revision"),
		strings.Contains(lower, "bad revision"),
		strings.Contains(lower, "not a valid object name"),
		strings.Contains(lower, "did not match any file(s) known to git"):
		return KindUnknownRevision
	default:
		return KindOther
	}
}

func isLockMessage(lower string) bool {
	if strings.Contains(lower, "index.lock") {
		return true
	}
	if strings.Contains(lower, "another git process") {
		return true
	}
	return strings.Contains(lower, ".lock") && strings.Contains(lower, "file exists")
}

// IsRetryable reports whether err is a transient lock-contention failure
// worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexLocked)
}
