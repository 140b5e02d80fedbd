package types

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes core errors for callers and the HTTP layer
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindPermissionDenied   ErrorKind = "permission_denied"
	ErrorKindSchedulingConflict ErrorKind = "scheduling_conflict"
	ErrorKindCacheInconsistency ErrorKind = "cache_inconsistency"
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindInternal           ErrorKind = "internal"
)

// CoreError is the structured error every core operation returns. Kind
// drives retry/display decisions, Code is a stable machine identifier,
// ConflictIDs carries the offending record ids for scheduling conflicts.
type CoreError struct {
	Kind        ErrorKind         `json:"kind"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	ConflictIDs []string          `json:"conflict_ids,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Cause       error             `json:"-"`
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *CoreError {
	return &CoreError{Kind: ErrorKindValidation, Code: code, Message: message}
}

// NewPermissionDenied creates a permission denied error
func NewPermissionDenied(code, message string) *CoreError {
	return &CoreError{Kind: ErrorKindPermissionDenied, Code: code, Message: message}
}

// NewSchedulingConflict creates a scheduling conflict error carrying every
// conflicting appointment id.
func NewSchedulingConflict(conflictIDs []string) *CoreError {
	return &CoreError{
		Kind:        ErrorKindSchedulingConflict,
		Code:        ErrCodeSchedulingConflict,
		Message:     fmt.Sprintf("appointment overlaps %d existing appointment(s)", len(conflictIDs)),
		ConflictIDs: conflictIDs,
	}
}

// NewCacheInconsistency creates a cache inconsistency error
func NewCacheInconsistency(message string, cause error) *CoreError {
	return &CoreError{Kind: ErrorKindCacheInconsistency, Code: ErrCodeCacheInconsistency, Message: message, Cause: cause}
}

// NewNotFound creates a not found error
func NewNotFound(entity EntityType, id string) *CoreError {
	return &CoreError{
		Kind:    ErrorKindNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// NewInternalError creates an internal error wrapping its cause
func NewInternalError(message string, cause error) *CoreError {
	return &CoreError{Kind: ErrorKindInternal, Code: ErrCodeInternal, Message: message, Cause: cause}
}

// AsCoreError extracts a CoreError from err, unwrapping as needed.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return kindOf(err) == ErrorKindValidation }

// IsPermissionDenied reports whether err is a permission denied error.
func IsPermissionDenied(err error) bool { return kindOf(err) == ErrorKindPermissionDenied }

// IsSchedulingConflict reports whether err is a scheduling conflict.
func IsSchedulingConflict(err error) bool { return kindOf(err) == ErrorKindSchedulingConflict }

// IsCacheInconsistency reports whether err is a cache inconsistency.
func IsCacheInconsistency(err error) bool { return kindOf(err) == ErrorKindCacheInconsistency }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return kindOf(err) == ErrorKindNotFound }

func kindOf(err error) ErrorKind {
	if ce, ok := AsCoreError(err); ok {
		return ce.Kind
	}
	return ""
}

// Common error codes
const (
	ErrCodeInvalidPhone       = "INVALID_PHONE"
	ErrCodeInvalidBirthDate   = "INVALID_BIRTH_DATE"
	ErrCodeInvalidDuration    = "INVALID_DURATION"
	ErrCodeInvalidPageSize    = "INVALID_PAGE_SIZE"
	ErrCodeInvalidPage        = "INVALID_PAGE"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidDoctor      = "INVALID_DOCTOR"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeCentresRequired    = "CENTRES_REQUIRED"
	ErrCodeOutOfScope         = "OUT_OF_SCOPE"
	ErrCodeRoleNotAllowed     = "ROLE_NOT_ALLOWED"
	ErrCodeSchedulingConflict = "SCHEDULING_CONFLICT"
	ErrCodeCacheInconsistency = "CACHE_INCONSISTENCY"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
