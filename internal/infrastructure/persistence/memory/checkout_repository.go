package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// CheckoutRepository is an in-memory checkout.Repository with a unique
// idempotency key
type CheckoutRepository struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*checkout.Checkout
	byKey map[string]uuid.UUID
}

// NewCheckoutRepository creates an empty repository
func NewCheckoutRepository() *CheckoutRepository {
	return &CheckoutRepository{
		byID:  make(map[uuid.UUID]*checkout.Checkout),
		byKey: make(map[string]uuid.UUID),
	}
}

// Insert stores c at version 1
func (r *CheckoutRepository) Insert(_ context.Context, c *checkout.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byKey[c.IdempotencyKey]; taken {
		return checkout.ErrIdempotencyKeyExists
	}
	c.Version = 1
	r.byID[c.ID] = clone(c)
	r.byKey[c.IdempotencyKey] = c.ID
	return nil
}

// Save replaces the stored checkout when versions match
func (r *CheckoutRepository) Save(_ context.Context, c *checkout.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[c.ID]
	if !ok || current.Version != c.Version {
		return checkout.ErrConcurrentModification
	}
	c.Version++
	r.byID[c.ID] = clone(c)
	return nil
}

// FindByID returns a copy of the stored checkout
func (r *CheckoutRepository) FindByID(_ context.Context, id uuid.UUID) (*checkout.Checkout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, checkout.ErrCheckoutNotFound
	}
	return clone(c), nil
}

// FindByIdempotencyKey returns a copy of the checkout owning key
func (r *CheckoutRepository) FindByIdempotencyKey(ctx context.Context, key string) (*checkout.Checkout, error) {
	r.mu.Lock()
	id, ok := r.byKey[key]
	r.mu.Unlock()
	if !ok {
		return nil, checkout.ErrCheckoutNotFound
	}
	return r.FindByID(ctx, id)
}

// FindExpiredReserved returns reserved checkouts expired at now, oldest first
func (r *CheckoutRepository) FindExpiredReserved(_ context.Context, now time.Time, limit int) ([]*checkout.Checkout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*checkout.Checkout
	for _, c := range r.byID {
		if c.IsExpired(now) {
			expired = append(expired, clone(c))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// FindStalePending returns pending checkouts created at or before createdBefore
func (r *CheckoutRepository) FindStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*checkout.Checkout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*checkout.Checkout
	for _, c := range r.byID {
		if c.Status == checkout.StatusPending && !c.CreatedAt.After(createdBefore) {
			stale = append(stale, clone(c))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// clone copies c without its pending events
func clone(c *checkout.Checkout) *checkout.Checkout {
	cp := *c
	cp.EventRecorder = shared.EventRecorder{}
	cp.Items = append([]checkout.Item(nil), c.Items...)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	if c.CancelledAt != nil {
		t := *c.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

var _ checkout.Repository = (*CheckoutRepository)(nil)
