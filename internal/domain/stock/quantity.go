package stock

import (
	"fmt"
	"math"
)

// MaxQuantity is the largest quantity a Stock can hold
const MaxQuantity int64 = math.MaxInt64

// Quantity is a non-negative count of sellable units. Every operation
// returns a new value; the receiver is never modified.
type Quantity struct {
	value int64
}

// NewQuantity creates a Quantity, rejecting negative values
func NewQuantity(value int64) (Quantity, error) {
	if value < 0 {
		return Quantity{}, ErrInvalidQuantity.WithMessage(fmt.Sprintf("stock quantity must not be negative: %d", value))
	}
	return Quantity{value: value}, nil
}

// MustNewQuantity creates a Quantity and panics on invalid input
func MustNewQuantity(value int64) Quantity {
	q, err := NewQuantity(value)
	if err != nil {
		panic(err)
	}
	return q
}

// Value returns the raw count
func (q Quantity) Value() int64 {
	return q.value
}

// Deduct returns q - amount. It fails rather than clamping at zero.
func (q Quantity) Deduct(amount int64) (Quantity, error) {
	if amount < 0 {
		return Quantity{}, ErrInsufficientStock.WithMessage(fmt.Sprintf("deduct amount must not be negative: %d", amount))
	}
	if amount > q.value {
		return Quantity{}, ErrInsufficientStock.WithMessage(
			fmt.Sprintf("insufficient stock: requested %d, available %d", amount, q.value))
	}
	return Quantity{value: q.value - amount}, nil
}

// Restore returns q + amount
func (q Quantity) Restore(amount int64) (Quantity, error) {
	if amount < 0 {
		return Quantity{}, ErrStockOverflow.WithMessage(fmt.Sprintf("restore amount must not be negative: %d", amount))
	}
	if amount > MaxQuantity-q.value {
		return Quantity{}, ErrStockOverflow.WithMessage(
			fmt.Sprintf("restoring %d to %d exceeds the maximum stock quantity", amount, q.value))
	}
	return Quantity{value: q.value + amount}, nil
}

// IsEnough reports whether n units can be deducted
func (q Quantity) IsEnough(n int64) bool {
	return n >= 0 && n <= q.value
}

// HasStock reports whether at least one unit is available
func (q Quantity) HasStock() bool {
	return q.value > 0
}

// IsEmpty reports whether nothing is available
func (q Quantity) IsEmpty() bool {
	return q.value == 0
}

// String implements fmt.Stringer
func (q Quantity) String() string {
	return fmt.Sprintf("%d", q.value)
}
