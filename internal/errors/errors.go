// Package errors holds the sentinel errors shared across playertrack.
//
// This file provides:
// - Sentinel errors for storage, admission and protocol conditions
// - Error category checks
// - Mapping from errors to WebSocket close codes and wire error codes
// - Error wrapping utilities and a validation error collector
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ============================================================================
// Wire error codes - sent to viewers in "error" envelopes
// ============================================================================

const (
	CodeUnknown        int32 = 1
	CodeInvalidRequest int32 = 2
	CodeNotFound       int32 = 3
	CodeInternal       int32 = 4
	CodeRateLimited    int32 = 5
	CodeUnavailable    int32 = 6
	CodeUnauthorized   int32 = 7
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeNotFound:
		return "NotFound"
	case CodeInternal:
		return "Internal"
	case CodeRateLimited:
		return "RateLimited"
	case CodeUnavailable:
		return "Unavailable"
	case CodeUnauthorized:
		return "Unauthorized"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// WebSocket close codes (RFC 6455 section 7.4.1)
// ============================================================================

const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	ClosePolicy        = 1008
	CloseTooLarge      = 1009
	CloseInternal      = 1011
	CloseTryAgainLater = 1013
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Storage errors
	ErrSchema    = errors.New("storage schema error")
	ErrStorage   = errors.New("storage error")
	ErrClosed    = errors.New("storage closed")
	ErrDuplicate = errors.New("duplicate key")

	// Admission errors
	ErrOriginNotAllowed = errors.New("origin not allowed")
	ErrPerIPLimit       = errors.New("too many connections from address")
	ErrGlobalLimit      = errors.New("too many connections")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrConnClosed       = errors.New("connection is closed")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidKind   = errors.New("invalid server type")

	// Lookup errors
	ErrNotFound      = errors.New("not found")
	ErrUnknownServer = errors.New("unknown server")

	// Pipeline errors
	ErrQueueFull     = errors.New("queue full")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidTick   = errors.New("invalid tick")
	ErrInvalidFormat = errors.New("invalid format")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsAdmission returns true if err rejected a connection during admission.
func IsAdmission(err error) bool {
	return errors.Is(err, ErrOriginNotAllowed) ||
		errors.Is(err, ErrPerIPLimit) ||
		errors.Is(err, ErrGlobalLimit)
}

// IsFatalStorage returns true if the storage failure should abort startup.
func IsFatalStorage(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidTick) ||
		errors.Is(err, ErrInvalidFormat)
}

// ============================================================================
// Error to code mapping
// ============================================================================

// CloseCode maps an error to the close code sent when a connection is
// terminated because of it.
func CloseCode(err error) int {
	switch {
	case err == nil:
		return CloseNormal
	case Is(err, ErrOriginNotAllowed), Is(err, ErrRateLimited):
		return ClosePolicy
	case Is(err, ErrPerIPLimit), Is(err, ErrGlobalLimit):
		return CloseTryAgainLater
	default:
		return CloseInternal
	}
}

// CloseReason returns the short close reason for err.
func CloseReason(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrOriginNotAllowed):
		return "Origin not allowed"
	case Is(err, ErrPerIPLimit), Is(err, ErrGlobalLimit):
		return "Too many connections"
	case Is(err, ErrRateLimited):
		return "Rate limit exceeded"
	default:
		return "Internal error"
	}
}

// ErrorToCode maps a sentinel error to its wire code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrNotFound), Is(err, ErrUnknownServer):
		return CodeNotFound
	case IsValidation(err):
		return CodeInvalidRequest
	case Is(err, ErrRateLimited):
		return CodeRateLimited
	case Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case Is(err, ErrQueueFull), Is(err, ErrClosed):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Storage marks err as a transient storage failure of op.
// Context cancellation passes through unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Schema marks err as a fatal schema failure.
func Schema(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSchema, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}

// ErrOrNil returns nil if there are no errors, otherwise returns v.
func (v *ValidationErrors) ErrOrNil() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}
