// Package retry runs an operation with exponential backoff, retrying only errors
// the caller classifies as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxDelay caps the wait between two attempts.
const DefaultMaxDelay = 30 * time.Second

// ExhaustedError is returned when every attempt failed with a retriable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; later waits grow exponentially.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero selects DefaultMaxDelay.
	MaxDelay time.Duration
	// IsRetriable classifies errors. Nil retries everything.
	IsRetriable func(error) bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs fn until it succeeds, returns a non-retriable error, the context ends,
// or maxAttempts is reached.
func Do(ctx context.Context, fn func(ctx context.Context) error, maxAttempts int, baseDelay time.Duration, isRetriable func(error) bool) error {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, IsRetriable: isRetriable}.Do(ctx, fn)
}

// Do runs fn under the policy. Non-retriable errors are returned as is; a retriable
// error that survives the last attempt is wrapped in ExhaustedError.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = time.Millisecond
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = DefaultMaxDelay
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	tried := 0
	var last error
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		tried++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if p.IsRetriable != nil && !p.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(tried, err, wait)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		if last != nil {
			return fmt.Errorf("%w (last error: %v)", ctxErr, last)
		}
		return ctxErr
	}
	if tried >= attempts && (p.IsRetriable == nil || p.IsRetriable(err)) {
		return &ExhaustedError{Attempts: tried, Err: err}
	}
	return err
}
