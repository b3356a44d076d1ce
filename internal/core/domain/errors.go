package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no server has the requested id.
	ErrNotFound = errors.New("server not found")
	// ErrInvalidRequest marks payloads rejected at the boundary.
	ErrInvalidRequest = errors.New("invalid request")
)

// DuplicateIdentityError rejects a caller-assigned id that is already taken.
// It is an expected outcome, not a failure of the registry.
type DuplicateIdentityError struct {
	ID ID
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("server id %s already exists", e.ID)
}

// StorageError reports an I/O or (de)serialization failure of the registry's
// durable medium. Operations that fail this way are never partially applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TemplateError reports a configuration template that could not be rendered
// into a launch specification.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template: %v", e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// RuntimeError reports a container runtime failure while building, creating
// or starting an instance.
type RuntimeError struct {
	Op       string
	Instance string
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime: %s %s: %v", e.Op, e.Instance, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
