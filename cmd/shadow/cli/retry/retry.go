// Package retry runs git mutations that may collide with another git process
// holding the repository lock.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
)

// Defaults used when a Policy field is zero.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Policy bounds how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the fixed wait between tries.
	Delay time.Duration
	// Retryable decides whether an error warrants another try.
	// Defaults to gitcli.IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy returns the lock retry policy with package defaults.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay, Retryable: gitcli.IsRetryable}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Retryable == nil {
		p.Retryable = gitcli.IsRetryable
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-retryable error, the policy's
// attempts are exhausted, or ctx is done. The last error is returned wrapped
// with the operation name.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	p = p.normalized()

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.Retryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == p.Attempts {
			break
		}

		logging.Debug(logging.WithComponent(ctx, "retry"), "git lock contention, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.Attempts),
			slog.String("error", err.Error()),
		)

		if waitErr := wait(ctx, p.Delay); waitErr != nil {
			return fmt.Errorf("%s: %w", op, waitErr)
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, p.Attempts, err)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func wait(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
