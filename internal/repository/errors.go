package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/support-inbox/pkg/pg"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write hits a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrMaxRetriesExceeded is returned when a retried write keeps failing.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFound(err):
		return ErrNotFound
	case pg.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

// withRetry runs an idempotent write up to maxRetries+1 times with exponential
// backoff. ErrNotFound, ErrDuplicate and context errors are not retried.
func withRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	const baseDelay = 5 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts: %w", ErrMaxRetriesExceeded, maxRetries+1, err)
}
