package engine

import (
	"errors"
	"fmt"

	"stageline/internal/domain"
	"stageline/internal/repo"
)

var (
	// ErrNotFound is returned for unknown items, entries and clients.
	ErrNotFound = repo.ErrNotFound
	// ErrInvalidState covers operations that conflict with the current state.
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyStopped = fmt.Errorf("%w: time entry already stopped", ErrInvalidState)
	ErrValidation     = errors.New("validation failed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrValidation }

// ParseStage is domain.ParseStage with the error reported as a ValidationError.
func ParseStage(s string) (domain.Stage, error) {
	st, err := domain.ParseStage(s)
	if err != nil {
		return "", ValidationError{Field: "stage", Reason: err.Error()}
	}
	return st, nil
}

func ParsePriority(s string) (domain.Priority, error) {
	p, err := domain.ParsePriority(s)
	if err != nil {
		return "", ValidationError{Field: "priority", Reason: err.Error()}
	}
	return p, nil
}
