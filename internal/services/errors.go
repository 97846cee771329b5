package services

import (
	"errors"
	"fmt"

	"github.com/nimasrn/support-inbox/internal/repository"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrConflict is resolved locally by re-reading the existing record.
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency unavailable")
	// ErrPolicy marks an action blocked by a guard. It is logged and skipped.
	ErrPolicy = errors.New("blocked by policy")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError maps a repository error onto the service taxonomy.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrDependency, err)
}
