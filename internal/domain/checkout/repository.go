package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists checkouts. The idempotency key column is unique.
type Repository interface {
	// Insert stores a new checkout at version 1. Returns
	// ErrIdempotencyKeyExists when the key is already taken.
	Insert(ctx context.Context, c *Checkout) error
	// Save updates an existing checkout if its stored version still equals
	// c.Version, then advances c.Version. Returns ErrConcurrentModification
	// otherwise.
	Save(ctx context.Context, c *Checkout) error
	FindByID(ctx context.Context, id uuid.UUID) (*Checkout, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Checkout, error)
	// FindExpiredReserved returns up to limit RESERVED checkouts whose
	// ExpiresAt is at or before now, oldest first.
	FindExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*Checkout, error)
	// FindStalePending returns up to limit PENDING checkouts created at or
	// before createdBefore, oldest first.
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*Checkout, error)
}
