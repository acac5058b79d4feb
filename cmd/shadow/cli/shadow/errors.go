package shadow

import (
	"errors"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
)

var (
	// ErrProtectedDirectory is returned when the workspace is the home
	// directory or one of its Desktop, Documents or Downloads folders.
	ErrProtectedDirectory = errors.New("cannot checkpoint a protected directory")

	// ErrNestedRepository is returned when the workspace contains another
	// git repository below its root.
	ErrNestedRepository = errors.New("workspace contains a nested git repository")

	// ErrWorktreeMismatch is returned when an existing shadow repository is
	// bound to a different workspace than the one requested.
	ErrWorktreeMismatch = errors.New("shadow repository is bound to a different workspace")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("shadow repository already initialized")

	// ErrNotInitialized is returned by operations that need a ready engine.
	ErrNotInitialized = errors.New("shadow repository not initialized")

	// ErrDisposed is returned by operations on a disposed engine.
	ErrDisposed = errors.New("shadow engine disposed")

	// ErrInitFailed is returned by operations on an engine whose
	// initialization failed. Such an engine must be discarded.
	ErrInitFailed = errors.New("shadow engine initialization failed")

	// ErrBranchNotFound is returned by DeleteTask when the task branch does
	// not exist. Callers can use errors.Is for idempotent deletion.
	ErrBranchNotFound = errors.New("task branch not found")

	// ErrGitNotInstalled is returned when no git executable is available.
	ErrGitNotInstalled = gitcli.ErrNotInstalled

	// ErrUnknownCheckpoint is returned when a checkpoint hash or revision
	// does not resolve in the shadow repository.
	ErrUnknownCheckpoint = gitcli.ErrUnknownRevision
)
