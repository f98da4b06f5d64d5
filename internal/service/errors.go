package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/clinic-queue-booking/internal/repository"
)

// ValidationError is a malformed or incomplete request.  It is raised
// before any store access and is correctable by the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError means the requested state can no longer be reached, most
// often because the slot was taken between fetching availability and
// committing.  Reason is shown to the user as is.  Nothing retries
// automatically.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// Authorization failures.  Both are raised before a booking is read or
// written on behalf of the caller.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ErrNotFound is the repository sentinel re-exported for handlers.
var ErrNotFound = repository.ErrNotFound
