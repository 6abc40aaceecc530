package shared

import "errors"

// ErrorCategory groups domain errors by how a caller is expected to react.
type ErrorCategory string

const (
	// CategoryValidation errors are the caller's fault and are never retried.
	CategoryValidation ErrorCategory = "VALIDATION"
	// CategoryContention errors are transient and safe to retry.
	CategoryContention ErrorCategory = "CONTENTION"
	// CategoryBusiness errors are terminal for the current attempt.
	CategoryBusiness ErrorCategory = "BUSINESS"
	// CategoryNotFound errors mean the referenced resource does not exist.
	CategoryNotFound ErrorCategory = "NOT_FOUND"
	// CategoryInfrastructure covers store or lock service failures.
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on the error code so detailed copies still satisfy errors.Is
// against the package-level sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether retrying the same request may succeed.
func (e *DomainError) Retryable() bool {
	return e.Category == CategoryContention
}

// WithMessage returns a copy carrying a more specific message.
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{
		Code:     e.Code,
		Message:  message,
		Category: e.Category,
	}
}

// NewDomainError creates a new domain error in the business category
func NewDomainError(code, message string) *DomainError {
	return NewCategorizedError(CategoryBusiness, code, message)
}

// NewCategorizedError creates a domain error with an explicit category
func NewCategorizedError(category ErrorCategory, code, message string) *DomainError {
	return &DomainError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// CategoryOf classifies any error. Errors that are not domain errors come
// from adapters and are treated as infrastructure failures.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return CategoryInfrastructure
}

// IsRetryable reports whether err is a contention error.
func IsRetryable(err error) bool {
	return CategoryOf(err) == CategoryContention
}

// Common domain errors
var (
	ErrNotFound              = NewCategorizedError(CategoryNotFound, "NOT_FOUND", "Resource not found")
	ErrInvalidInput          = NewCategorizedError(CategoryValidation, "INVALID_INPUT", "Invalid input provided")
	ErrInvalidState          = NewCategorizedError(CategoryValidation, "INVALID_STATE", "Operation not allowed in current state")
	ErrConcurrencyConflict   = NewCategorizedError(CategoryContention, "CONCURRENT_MODIFICATION", "Resource was modified by another process")
	ErrLockAcquisitionFailed = NewCategorizedError(CategoryContention, "LOCK_ACQUISITION_FAILED", "Could not acquire lock within the wait timeout")
	ErrLockNotHeld           = NewCategorizedError(CategoryInfrastructure, "LOCK_NOT_HELD", "Lock is no longer held by this token")
)
