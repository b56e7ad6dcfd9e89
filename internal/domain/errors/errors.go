// Package errors defines the typed failures surfaced by the moderation and
// data-access layers. Callers match them with errors.Is against the sentinels
// or errors.As against the concrete types.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below.
var (
	ErrValidation      = errors.New("validation failed")
	ErrAuthorization   = errors.New("not authorized")
	ErrNotFound        = errors.New("entity not found")
	ErrDuplicate       = errors.New("duplicate entity")
	ErrDatabase        = errors.New("database error")
	ErrPartialApproval = errors.New("approval recorded but changes not applied")

	// ErrPoolExhausted is the cause of a DatabaseError raised when no session
	// became free within the checkout timeout.
	ErrPoolExhausted = errors.New("no database session available")
	// ErrPoolClosed is the cause of a DatabaseError raised after shutdown.
	ErrPoolClosed = errors.New("database pool is closed")
)

// ValidationError reports malformed input: a bad payload, an illegal
// entity/operation combination, a state transition that is not allowed.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AuthorizationError reports that the acting user does not exist or lacks
// the required role.
type AuthorizationError struct {
	UserID   string
	Required string
	Actual   string
}

func (e *AuthorizationError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("user %q is not allowed to perform this action (requires %s)", e.UserID, e.Required)
	}
	return fmt.Sprintf("user %q has role %s, requires %s", e.UserID, e.Actual, e.Required)
}

// Is reports whether target is ErrAuthorization.
func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }

// EntityNotFoundError reports a missing change request, user or catalog record.
type EntityNotFoundError struct {
	Kind string
	ID   string
}

// NewNotFound creates an EntityNotFoundError.
func NewNotFound(kind, id string) *EntityNotFoundError {
	return &EntityNotFoundError{Kind: kind, ID: id}
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *EntityNotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateEntityError reports a uniqueness violation.
type DuplicateEntityError struct {
	Kind   string
	Detail string
	Err    error
}

func (e *DuplicateEntityError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s already exists", e.Kind)
	}
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Detail)
}

// Is reports whether target is ErrDuplicate.
func (e *DuplicateEntityError) Is(target error) bool { return target == ErrDuplicate }

// Unwrap returns the underlying driver error.
func (e *DuplicateEntityError) Unwrap() error { return e.Err }

// Stage records where a database failure happened.
type Stage string

const (
	// StageInit covers pool construction and the startup probe.
	StageInit Stage = "init"
	// StageAcquire covers session checkout, ping and session setup. Nothing
	// reached the store yet.
	StageAcquire Stage = "acquire"
	// StageExecute covers statements, commits and rollbacks.
	StageExecute Stage = "execute"
)

// DatabaseError wraps any failure of the relational store.
type DatabaseError struct {
	Op        string
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("database %s failed during %s", e.Op, e.Stage)
	}
	return fmt.Sprintf("database %s failed during %s: %v", e.Op, e.Stage, e.Err)
}

// Is reports whether target is ErrDatabase.
func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// Unwrap returns the underlying cause.
func (e *DatabaseError) Unwrap() error { return e.Err }

// PartialApprovalError reports that a request was marked APPROVED but
// applying its payload failed afterwards.
type PartialApprovalError struct {
	RequestID string
	Err       error
}

func (e *PartialApprovalError) Error() string {
	return fmt.Sprintf("request %s: approval recorded but changes not applied: %v", e.RequestID, e.Err)
}

// Is reports whether target is ErrPartialApproval.
func (e *PartialApprovalError) Is(target error) bool { return target == ErrPartialApproval }

// Unwrap returns the apply failure.
func (e *PartialApprovalError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a DatabaseError flagged as transient.
func IsRetryable(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Retryable
}

// StageOf returns the stage of the first DatabaseError in err's chain.
func StageOf(err error) (Stage, bool) {
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		return "", false
	}
	return dbErr.Stage, true
}
