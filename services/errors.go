package services

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by a service wraps exactly one of
// them; callers branch with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrActiveChallengeExists = fmt.Errorf("%w: user already has an active challenge", ErrConflict)
	ErrChallengeNotFound     = fmt.Errorf("%w: challenge not found or inactive", ErrNotFound)
	ErrNoActiveChallenge     = fmt.Errorf("%w: no matching active challenge", ErrNotFound)
	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrExpenseNotFound       = fmt.Errorf("%w: expense not found", ErrNotFound)
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageErr wraps err as a storage failure unless it already carries one of
// the service categories.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
