package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// NewAccessibleForm builds a huh form that switches to plain text prompts
// when ACCESSIBLE is set.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if isAccessibleMode() {
		form = form.WithAccessible(true)
	}
	return form
}

func isAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // Fd fits in int on supported platforms
}

// canPrompt reports whether the user can answer a prompt.
func canPrompt() bool {
	if isAccessibleMode() {
		return true
	}
	return stdinIsTerminal()
}

// confirm asks a yes/no question. Aborting the prompt counts as no.
func confirm(title, description string) (bool, error) {
	var confirmed bool

	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return confirmed, nil
}

// confirmDestructive returns true when force is set or the user agrees.
// Without a terminal it explains on w how to proceed and fails silently.
func confirmDestructive(w io.Writer, force bool, title, description string) (bool, error) {
	if force {
		return true, nil
	}
	if !canPrompt() {
		fmt.Fprintln(w, "Refusing to continue without confirmation. Re-run with --force in non-interactive mode.")
		return false, NewSilentError(errors.New("confirmation required"))
	}
	return confirm(title, description)
}
