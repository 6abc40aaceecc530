package dto

import (
	"errors"
	"net/http"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when the store or lock service cannot be reached
	ErrCodeUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Validation error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeInvalidQuantity = "ERR_INVALID_QUANTITY"
	ErrCodeInvalidItem     = "ERR_INVALID_CHECKOUT_ITEM"
	// ErrCodeIdempotencyKeyRequired is returned when the Idempotency-Key header is missing
	ErrCodeIdempotencyKeyRequired = "ERR_IDEMPOTENCY_KEY_REQUIRED"
	ErrCodePaymentMismatch        = "ERR_PAYMENT_MISMATCH"
	ErrCodeRequestTooLarge        = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeStockNotFound    = "ERR_STOCK_NOT_FOUND"
	ErrCodeCheckoutNotFound = "ERR_CHECKOUT_NOT_FOUND"
	ErrCodeAlreadyExists    = "ERR_ALREADY_EXISTS"
)

// Contention error codes. Clients may retry these with backoff.
const (
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeLockTimeout         = "ERR_LOCK_TIMEOUT"
	ErrCodeReservationTimeout  = "ERR_RESERVATION_TIMEOUT"
)

// Business rule error codes
const (
	ErrCodeInvalidState      = "ERR_INVALID_STATE"
	ErrCodeBusinessRule      = "ERR_BUSINESS_RULE"
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
	ErrCodeStockOverflow     = "ERR_STOCK_OVERFLOW"
	ErrCodeDuplicateCheckout = "ERR_DUPLICATE_CHECKOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:             http.StatusBadRequest,
	ErrCodeBadRequest:             http.StatusBadRequest,
	ErrCodeInvalidJSON:            http.StatusBadRequest,
	ErrCodeInvalidQuantity:        http.StatusBadRequest,
	ErrCodeInvalidItem:            http.StatusBadRequest,
	ErrCodeIdempotencyKeyRequired: http.StatusBadRequest,
	ErrCodePaymentMismatch:        http.StatusBadRequest,
	ErrCodeRequestTooLarge:        http.StatusRequestEntityTooLarge,

	// Resource errors
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeStockNotFound:    http.StatusNotFound,
	ErrCodeCheckoutNotFound: http.StatusNotFound,
	ErrCodeAlreadyExists:    http.StatusConflict,

	// Contention -> 409 Conflict, 503 for the overall deadline
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeLockTimeout:         http.StatusConflict,
	ErrCodeReservationTimeout:  http.StatusServiceUnavailable,

	// Business rule errors -> 422 Unprocessable Entity, duplicate key -> 409
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock: http.StatusUnprocessableEntity,
	ErrCodeStockOverflow:     http.StatusUnprocessableEntity,
	ErrCodeDuplicateCheckout: http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the stable API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"INVALID_INPUT":           ErrCodeBadRequest,
	"INVALID_STATE":           ErrCodeInvalidState,
	"CONCURRENT_MODIFICATION": ErrCodeConcurrencyConflict,
	"LOCK_ACQUISITION_FAILED": ErrCodeLockTimeout,
	"LOCK_NOT_HELD":           ErrCodeUnavailable,

	"INVALID_QUANTITY":     ErrCodeInvalidQuantity,
	"INVALID_PRODUCT":      ErrCodeBadRequest,
	"INSUFFICIENT_STOCK":   ErrCodeInsufficientStock,
	"STOCK_OVERFLOW":       ErrCodeStockOverflow,
	"STOCK_ALREADY_EXISTS": ErrCodeAlreadyExists,
	"STOCK_NOT_FOUND":      ErrCodeStockNotFound,
	"RESERVATION_TIMEOUT":  ErrCodeReservationTimeout,

	"INVALID_CHECKOUT_STATUS": ErrCodeInvalidState,
	"INVALID_CHECKOUT_ITEM":   ErrCodeInvalidItem,
	"EMPTY_CHECKOUT":          ErrCodeInvalidItem,
	"INVALID_IDEMPOTENCY_KEY": ErrCodeIdempotencyKeyRequired,
	"INVALID_MEMBER":          ErrCodeBadRequest,
	"PAYMENT_MISMATCH":        ErrCodePaymentMismatch,
	"DUPLICATE_CHECKOUT":      ErrCodeDuplicateCheckout,
	"IDEMPOTENCY_KEY_EXISTS":  ErrCodeDuplicateCheckout,
	"CHECKOUT_NOT_FOUND":      ErrCodeCheckoutNotFound,
}

// categoryFallback is used for domain codes without an explicit mapping
var categoryFallback = map[shared.ErrorCategory]string{
	shared.CategoryValidation:     ErrCodeValidation,
	shared.CategoryContention:     ErrCodeConcurrencyConflict,
	shared.CategoryBusiness:       ErrCodeBusinessRule,
	shared.CategoryNotFound:       ErrCodeNotFound,
	shared.CategoryInfrastructure: ErrCodeUnavailable,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}

// MappedError is how an error is presented to API clients
type MappedError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

// MapError classifies err into a stable code and status. Errors that are
// not domain errors are hidden behind a generic message.
func MapError(err error) MappedError {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return MappedError{
			Status:  http.StatusInternalServerError,
			Code:    ErrCodeInternal,
			Message: "An unexpected error occurred",
		}
	}

	code, ok := DomainErrorCodeMapping[de.Code]
	if !ok {
		code = categoryFallback[de.Category]
		if code == "" {
			code = ErrCodeUnknown
		}
	}
	message := de.Message
	if de.Category == shared.CategoryInfrastructure {
		message = "A dependency is temporarily unavailable"
	}
	return MappedError{
		Status:    GetHTTPStatus(code),
		Code:      code,
		Message:   message,
		Retryable: de.Retryable(),
	}
}
