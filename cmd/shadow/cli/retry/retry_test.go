package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lockErr = &gitcli.CommandError{Args: []string{"add"}, Stderr: "index.lock: File exists", Kind: gitcli.KindIndexLocked}

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Delay: time.Millisecond}
}

func TestDo_SucceedsAfterLockContention(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), "stage", func(context.Context) error {
		calls++
		if calls < 3 {
			return lockErr
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), "stage", func(context.Context) error {
		calls++
		return lockErr
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	require.ErrorIs(t, err, gitcli.ErrIndexLocked)
	assert.Contains(t, err.Error(), "stage")
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "reset", func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, Delay: time.Hour}, "clean", func(context.Context) error {
		calls++
		cancel()
		return lockErr
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	t.Parallel()

	transient := errors.New("transient")
	calls := 0
	p := fastPolicy(2)
	p.Retryable = func(err error) bool { return errors.Is(err, transient) }

	err := Do(context.Background(), p, "op", func(context.Context) error {
		calls++
		return transient
	})

	require.ErrorIs(t, err, transient)
	assert.Equal(t, 2, calls)
}

func TestValue_ReturnsResult(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Value(context.Background(), fastPolicy(3), "write-tree", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", lockErr
		}
		return "abc123", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestNormalized_Defaults(t *testing.T) {
	t.Parallel()

	p := Policy{}.normalized()
	assert.Equal(t, DefaultAttempts, p.Attempts)
	assert.NotNil(t, p.Retryable)
	assert.Equal(t, DefaultDelay, DefaultPolicy().Delay)
}
