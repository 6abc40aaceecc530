package checkout

import (
	"context"
	"errors"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
)

// Outcome is the closed set of results a checkout operation can end in
type Outcome string

const (
	OutcomeOK                     Outcome = "OK"
	OutcomeInsufficientStock      Outcome = "INSUFFICIENT_STOCK"
	OutcomeDuplicate              Outcome = "DUPLICATE"
	OutcomeLockTimeout            Outcome = "LOCK_TIMEOUT"
	OutcomeConcurrentModification Outcome = "CONCURRENT_MODIFICATION"
	OutcomeInvalidStatus          Outcome = "INVALID_STATUS"
	OutcomeInvalidInput           Outcome = "INVALID_INPUT"
	OutcomeTimeout                Outcome = "TIMEOUT"
	OutcomeNotFound               Outcome = "NOT_FOUND"
	OutcomeInfrastructure         Outcome = "INFRASTRUCTURE"
)

// Result pairs the checkout state after an operation with how it ended.
// Checkout may be set even when Err is, e.g. a checkout that moved to FAILED.
type Result struct {
	Checkout *checkout.Checkout
	Outcome  Outcome
	Err      error
}

// Retryable reports whether resubmitting the same request may succeed
func (r Result) Retryable() bool {
	switch r.Outcome {
	case OutcomeLockTimeout, OutcomeConcurrentModification, OutcomeTimeout:
		return true
	}
	return false
}

// ClassifyResult maps the return values of a service call to a Result
func ClassifyResult(c *checkout.Checkout, err error) Result {
	return Result{Checkout: c, Outcome: outcomeOf(err), Err: err}
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	// a failed compensation wins over whatever caused it
	var de *shared.DomainError
	if errors.As(err, &de) && de.Category == shared.CategoryInfrastructure {
		return OutcomeInfrastructure
	}

	switch {
	case errors.Is(err, stock.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, checkout.ErrDuplicateCheckout):
		return OutcomeDuplicate
	case errors.Is(err, shared.ErrLockAcquisitionFailed):
		return OutcomeLockTimeout
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return OutcomeConcurrentModification
	case errors.Is(err, checkout.ErrInvalidCheckoutStatus):
		return OutcomeInvalidStatus
	case errors.Is(err, stock.ErrReservationTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}

	switch shared.CategoryOf(err) {
	case shared.CategoryNotFound:
		return OutcomeNotFound
	case shared.CategoryValidation, shared.CategoryBusiness:
		return OutcomeInvalidInput
	case shared.CategoryContention:
		return OutcomeConcurrentModification
	}
	return OutcomeInfrastructure
}
