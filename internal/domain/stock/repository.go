package stock

import "context"

// Repository persists Stock with optimistic concurrency.
type Repository interface {
	// FindByProductID returns ErrStockNotFound when the product was never stocked
	FindByProductID(ctx context.Context, productID int64) (Stock, error)
	// Create inserts a new Stock with version 0. Returns ErrStockAlreadyExists
	// when the product already has a row.
	Create(ctx context.Context, s Stock) (Stock, error)
	// CompareAndSwap writes next only if the stored version equals
	// expectedVersion, and returns the stored value with version
	// expectedVersion+1. Returns ErrConcurrentModification otherwise.
	CompareAndSwap(ctx context.Context, next Stock, expectedVersion int64) (Stock, error)
}

// AvailabilityCache is a read-side hint of the latest known quantity per
// product. It is never consulted for correctness.
type AvailabilityCache interface {
	// Set records a quantity just committed under the product lock
	Set(ctx context.Context, productID, quantity int64) error
	// Fill records a quantity read without the lock, only when nothing is
	// cached, so it never overwrites a committed value. Reports whether it
	// wrote.
	Fill(ctx context.Context, productID, quantity int64) (bool, error)
	Get(ctx context.Context, productID int64) (quantity int64, found bool, err error)
}
