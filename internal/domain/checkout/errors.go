package checkout

import "github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"

// Checkout errors
var (
	ErrInvalidCheckoutStatus = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_CHECKOUT_STATUS", "Checkout status does not allow this operation")
	ErrInvalidCheckoutItem   = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_CHECKOUT_ITEM", "Checkout item is invalid")
	ErrEmptyCheckout         = shared.NewCategorizedError(shared.CategoryValidation, "EMPTY_CHECKOUT", "Checkout must contain at least one item")
	ErrInvalidIdempotencyKey = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_IDEMPOTENCY_KEY", "Idempotency key is required")
	ErrInvalidMember         = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_MEMBER", "Member id is required")
	ErrPaymentMismatch       = shared.NewCategorizedError(shared.CategoryValidation, "PAYMENT_MISMATCH", "Payment confirmation does not match the checkout")
	ErrDuplicateCheckout     = shared.NewDomainError("DUPLICATE_CHECKOUT", "Idempotency key was already used for a different checkout")
	ErrCheckoutNotFound      = shared.NewCategorizedError(shared.CategoryNotFound, "CHECKOUT_NOT_FOUND", "Checkout not found")

	// ErrIdempotencyKeyExists is returned by Repository.Insert when another
	// checkout already owns the idempotency key.
	ErrIdempotencyKeyExists = shared.NewDomainError("IDEMPOTENCY_KEY_EXISTS", "Idempotency key already exists")

	ErrConcurrentModification = shared.ErrConcurrencyConflict
)
