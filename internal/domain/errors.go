package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInactive        = errors.New("actor inactive")
	ErrStorage         = errors.New("storage failure")
)

// StateError reports an entity that is not in the state an operation needs.
type StateError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s is %s; expected %s", e.Entity, e.ID, e.Actual, e.Expected)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// NewStateError builds a StateError for entity id.
func NewStateError(entity, id, expected, actual string) error {
	return &StateError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

// StorageError wraps a transient store failure. The engine retries
// operations that fail with it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Invalid returns an ErrInvalidInput carrying msg.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// Outcome names the class of err for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInactive):
		return "forbidden"
	case errors.Is(err, ErrStorage):
		return "storage_failure"
	default:
		return "error"
	}
}
