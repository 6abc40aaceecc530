// Package stock models the on-hand sellable quantity of a product.
package stock

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// Stock is the sellable quantity of exactly one product.
//
// A Stock value is immutable. Deduct, Restore and SetQuantity return a new
// value that carries the version the receiver was loaded with; bumping the
// version is the store's job, performed by Repository.CompareAndSwap.
type Stock struct {
	id        *int64
	productID int64
	quantity  Quantity
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// New creates a Stock for a product that has never been stocked. It has no
// id and version 0 until the store persists it.
func New(productID, initial int64, now time.Time) (Stock, error) {
	if productID <= 0 {
		return Stock{}, ErrInvalidProduct
	}
	q, err := NewQuantity(initial)
	if err != nil {
		return Stock{}, err
	}
	return Stock{
		productID: productID,
		quantity:  q,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstitute rebuilds a persisted Stock. Used by repositories only.
func Reconstitute(id, productID, quantity, version int64, createdAt, updatedAt time.Time) (Stock, error) {
	q, err := NewQuantity(quantity)
	if err != nil {
		return Stock{}, fmt.Errorf("corrupt stock row %d: %w", id, err)
	}
	return Stock{
		id:        &id,
		productID: productID,
		quantity:  q,
		version:   version,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}, nil
}

// ID returns the stock id and whether it has been assigned
func (s Stock) ID() (int64, bool) {
	if s.id == nil {
		return 0, false
	}
	return *s.id, true
}

// IsNew reports whether the stock has never been persisted
func (s Stock) IsNew() bool {
	return s.id == nil
}

// ProductID returns the owning product
func (s Stock) ProductID() int64 {
	return s.productID
}

// Quantity returns the on-hand quantity
func (s Stock) Quantity() Quantity {
	return s.quantity
}

// Version returns the version the stock was loaded with
func (s Stock) Version() int64 {
	return s.version
}

func (s Stock) CreatedAt() time.Time {
	return s.createdAt
}

func (s Stock) UpdatedAt() time.Time {
	return s.updatedAt
}

// IsAvailable reports whether n units can be deducted
func (s Stock) IsAvailable(n int64) bool {
	return s.quantity.IsEnough(n)
}

// Deduct returns a copy with amount units removed
func (s Stock) Deduct(amount int64, now time.Time) (Stock, error) {
	q, err := s.quantity.Deduct(amount)
	if err != nil {
		return Stock{}, err
	}
	return s.with(q, now), nil
}

// Restore returns a copy with amount units added back
func (s Stock) Restore(amount int64, now time.Time) (Stock, error) {
	q, err := s.quantity.Restore(amount)
	if err != nil {
		return Stock{}, err
	}
	return s.with(q, now), nil
}

// SetQuantity returns a copy with the quantity replaced. Used by manual
// stock corrections.
func (s Stock) SetQuantity(value int64, now time.Time) (Stock, error) {
	q, err := NewQuantity(value)
	if err != nil {
		return Stock{}, err
	}
	return s.with(q, now), nil
}

// LockKey returns the lock guarding mutations of this stock
func (s Stock) LockKey() shared.LockKey {
	return LockKeyFor(s.productID)
}

func (s Stock) with(q Quantity, now time.Time) Stock {
	next := s
	next.quantity = q
	next.updatedAt = now
	return next
}

// LockKeyFor returns "lock:stock:product:{productID}"
func LockKeyFor(productID int64) shared.LockKey {
	return shared.NewLockKey("stock", "product", strconv.FormatInt(productID, 10))
}
