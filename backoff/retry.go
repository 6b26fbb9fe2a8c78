package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps an error to signal Retry that further attempts are
// futile (bad input, record not found). Retry returns the underlying error
// immediately, without the aggregate wrapper.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn up to attempts times, sleeping per the strategy between
// attempts. It returns nil on the first success. After exhaustion it returns
// an aggregate error joining every per-attempt failure, so callers see the
// full history rather than only the last error.
//
// The context is checked between attempts; cancellation aborts the loop and
// the context error is included in the aggregate.
func Retry(ctx context.Context, attempts int, strategy Strategy, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if strategy == nil {
		strategy = NewConstant(0)
	}

	var errs []error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))

		if attempt == attempts {
			break
		}

		delay := strategy.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			errs = append(errs, ctx.Err())
			return fmt.Errorf("aborted after %d attempts: %w", attempt, errors.Join(errs...))
		case <-timer.C:
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", attempts, errors.Join(errs...))
}
