package stock

import "github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"

// Stock errors
var (
	ErrInvalidQuantity    = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_QUANTITY", "Stock quantity must not be negative")
	ErrInvalidProduct     = shared.NewCategorizedError(shared.CategoryValidation, "INVALID_PRODUCT", "Product id must be positive")
	ErrInsufficientStock  = shared.NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrStockOverflow      = shared.NewDomainError("STOCK_OVERFLOW", "Stock quantity would exceed the maximum")
	ErrStockAlreadyExists = shared.NewDomainError("STOCK_ALREADY_EXISTS", "Product is already stocked")
	ErrStockNotFound      = shared.NewCategorizedError(shared.CategoryNotFound, "STOCK_NOT_FOUND", "Stock not found for product")

	// ErrReservationTimeout is returned when a reservation outlives its soft
	// deadline. Partial deductions are restored before it is returned.
	ErrReservationTimeout = shared.NewCategorizedError(shared.CategoryContention, "RESERVATION_TIMEOUT", "Stock reservation did not finish before its deadline")

	// ErrConcurrentModification is returned by a compare-and-swap whose
	// expected version no longer matches the stored row.
	ErrConcurrentModification = shared.ErrConcurrencyConflict
)
