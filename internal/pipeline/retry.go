package pipeline

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/quizpack/internal/store"
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// classify wraps transient database errors as retryable.
func classify(err error) error {
	if err == nil || IsRetryable(err) {
		return err
	}
	if store.IsTransient(err) {
		return &RetryableError{Err: err}
	}
	return err
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// DefaultMaxAttempts is used when a job is created without a limit.
const DefaultMaxAttempts = 3
