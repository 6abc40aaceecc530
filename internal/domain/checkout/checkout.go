// Package checkout models one purchase attempt and its lifecycle.
package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
)

// MaxIdempotencyKeyLength bounds the client-supplied key
const MaxIdempotencyKeyLength = 128

// Checkout is the aggregate root of a purchase attempt.
//
// Transitions: PENDING -> RESERVED -> COMPLETED, PENDING -> FAILED and
// RESERVED -> CANCELLED. A rejected transition leaves the checkout untouched.
type Checkout struct {
	shared.EventRecorder

	ID             uuid.UUID
	IdempotencyKey string
	MemberID       string
	Items          []Item
	Status         Status
	Version        int64
	ExpiresAt      time.Time

	PaymentID       string
	PGTransactionID string
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    CancelReason
	FailureReason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentConfirmation is what the payment gateway callback reports
type PaymentConfirmation struct {
	PaymentID       string
	PGTransactionID string
	// PaidAmount is compared with the checkout total when set
	PaidAmount *valueobject.Money
}

// New creates a PENDING checkout. The id is chosen by the caller so a replay
// can echo it back.
func New(id uuid.UUID, idempotencyKey, memberID string, items []Item, now time.Time, expiryWindow time.Duration) (*Checkout, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" || len(idempotencyKey) > MaxIdempotencyKeyLength {
		return nil, ErrInvalidIdempotencyKey
	}
	if strings.TrimSpace(memberID) == "" {
		return nil, ErrInvalidMember
	}
	if len(items) == 0 {
		return nil, ErrEmptyCheckout
	}
	currency := items[0].UnitPrice.Currency()
	for idx, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if it.UnitPrice.Currency() != currency {
			return nil, ErrInvalidCheckoutItem.WithMessage(
				fmt.Sprintf("item %d currency %s differs from %s", idx, it.UnitPrice.Currency(), currency))
		}
	}

	return &Checkout{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		MemberID:       memberID,
		Items:          append([]Item(nil), items...),
		Status:         StatusPending,
		ExpiresAt:      now.Add(expiryWindow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TotalAmount sums item subtotals. It is always derived, never stored.
func (c *Checkout) TotalAmount() valueobject.Money {
	if len(c.Items) == 0 {
		return valueobject.Zero(valueobject.DefaultCurrency)
	}
	total := valueobject.Zero(c.Items[0].UnitPrice.Currency())
	for _, it := range c.Items {
		// currencies were checked in New
		total, _ = total.Add(it.Subtotal())
	}
	return total
}

// StockRequirements returns the quantity needed per distinct product,
// ordered by ascending product id.
func (c *Checkout) StockRequirements() []StockRequirement {
	return requirementsOf(c.Items)
}

// GroupItemsBySeller splits the items by seller
func (c *Checkout) GroupItemsBySeller() map[int64][]Item {
	groups := make(map[int64][]Item)
	for _, it := range c.Items {
		groups[it.SellerID] = append(groups[it.SellerID], it)
	}
	return groups
}

// AmountBySeller returns the payable amount per seller
func (c *Checkout) AmountBySeller() map[int64]valueobject.Money {
	amounts := make(map[int64]valueobject.Money)
	for sellerID, items := range c.GroupItemsBySeller() {
		total := valueobject.Zero(items[0].UnitPrice.Currency())
		for _, it := range items {
			total, _ = total.Add(it.Subtotal())
		}
		amounts[sellerID] = total
	}
	return amounts
}

// SameRequest reports whether a replayed create carries the same payload
func (c *Checkout) SameRequest(memberID string, items []Item) bool {
	if c.MemberID != memberID || len(c.Items) != len(items) {
		return false
	}
	for i := range items {
		if !c.Items[i].sameAs(items[i]) {
			return false
		}
	}
	return true
}

// IsExpired reports whether a reserved checkout outlived its window
func (c *Checkout) IsExpired(now time.Time) bool {
	return c.Status == StatusReserved && !now.Before(c.ExpiresAt)
}

// IsCompletedBy reports whether the checkout was already completed by paymentID
func (c *Checkout) IsCompletedBy(paymentID string) bool {
	return c.Status == StatusCompleted && c.PaymentID == paymentID
}

// MarkReserved moves PENDING -> RESERVED
func (c *Checkout) MarkReserved(now time.Time) error {
	if err := c.transition(StatusReserved, now); err != nil {
		return err
	}
	c.AddDomainEvent(&CheckoutReservedEvent{
		BaseDomainEvent: newEvent(EventTypeCheckoutReserved, c, now),
		MemberID:        c.MemberID,
		TotalAmount:     c.TotalAmount(),
		Stock:           c.StockRequirements(),
		ExpiresAt:       c.ExpiresAt,
	})
	return nil
}

// MarkFailed moves PENDING -> FAILED
func (c *Checkout) MarkFailed(reason string, now time.Time) error {
	if err := c.transition(StatusFailed, now); err != nil {
		return err
	}
	c.FailureReason = reason
	c.AddDomainEvent(&CheckoutFailedEvent{
		BaseDomainEvent: newEvent(EventTypeCheckoutFailed, c, now),
		Reason:          reason,
	})
	return nil
}

// Complete moves RESERVED -> COMPLETED and stamps payment metadata. Stock is
// not touched; it was deducted at reservation.
func (c *Checkout) Complete(payment PaymentConfirmation, now time.Time) error {
	if !c.Status.CanTransitionTo(StatusCompleted) {
		return c.invalidTransition(StatusCompleted)
	}
	if strings.TrimSpace(payment.PaymentID) == "" {
		return ErrPaymentMismatch.WithMessage("payment id is required")
	}
	if payment.PaidAmount != nil && !payment.PaidAmount.Equals(c.TotalAmount()) {
		return ErrPaymentMismatch.WithMessage(
			fmt.Sprintf("paid %s but checkout total is %s", payment.PaidAmount, c.TotalAmount()))
	}
	if err := c.transition(StatusCompleted, now); err != nil {
		return err
	}
	c.PaymentID = payment.PaymentID
	c.PGTransactionID = payment.PGTransactionID
	c.CompletedAt = &now
	c.AddDomainEvent(&CheckoutCompletedEvent{
		BaseDomainEvent: newEvent(EventTypeCheckoutCompleted, c, now),
		PaymentID:       payment.PaymentID,
		TotalAmount:     c.TotalAmount(),
	})
	return nil
}

// Cancel moves RESERVED -> CANCELLED. The caller restores stock first.
func (c *Checkout) Cancel(reason CancelReason, now time.Time) error {
	if err := c.transition(StatusCancelled, now); err != nil {
		return err
	}
	c.CancelledAt = &now
	c.CancelReason = reason
	c.AddDomainEvent(&CheckoutCancelledEvent{
		BaseDomainEvent: newEvent(EventTypeCheckoutCancelled, c, now),
		Reason:          reason,
		Stock:           c.StockRequirements(),
	})
	return nil
}

// LockKey returns the lock serializing state changes of this checkout
func (c *Checkout) LockKey() shared.LockKey {
	return LockKeyFor(c.ID)
}

// LockKeyFor returns "lock:checkout:{id}"
func LockKeyFor(id uuid.UUID) shared.LockKey {
	return shared.NewLockKey("checkout", id.String())
}

func (c *Checkout) transition(next Status, now time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return c.invalidTransition(next)
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

func (c *Checkout) invalidTransition(next Status) error {
	return ErrInvalidCheckoutStatus.WithMessage(
		fmt.Sprintf("checkout %s cannot move from %s to %s", c.ID, c.Status, next))
}
