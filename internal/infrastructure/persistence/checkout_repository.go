package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCheckoutRepository implements checkout.Repository
type GormCheckoutRepository struct {
	db *gorm.DB
}

// NewGormCheckoutRepository creates a new checkout repository
func NewGormCheckoutRepository(db *gorm.DB) *GormCheckoutRepository {
	return &GormCheckoutRepository{db: db}
}

// Insert stores a new checkout with its items at version 1. The unique
// index on idempotency_key decides which of two racing creates wins.
func (r *GormCheckoutRepository) Insert(ctx context.Context, c *checkout.Checkout) error {
	m := models.CheckoutModelFromDomain(c)
	m.Version = 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return checkout.ErrIdempotencyKeyExists
		}
		return err
	}
	c.Version = 1
	return nil
}

// Save writes the mutable columns if the stored version matches c.Version.
// Items are immutable after creation and are not rewritten.
func (r *GormCheckoutRepository) Save(ctx context.Context, c *checkout.Checkout) error {
	m := models.CheckoutModelFromDomain(c)
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutModel{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Updates(map[string]any{
			"status":            m.Status,
			"version":           c.Version + 1,
			"payment_id":        m.PaymentID,
			"pg_transaction_id": m.PGTransactionID,
			"completed_at":      m.CompletedAt,
			"cancelled_at":      m.CancelledAt,
			"cancel_reason":     m.CancelReason,
			"failure_reason":    m.FailureReason,
			"updated_at":        m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return checkout.ErrConcurrentModification
	}
	c.Version++
	return nil
}

// FindByID loads a checkout with its items
func (r *GormCheckoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*checkout.Checkout, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByIdempotencyKey loads the checkout created under key
func (r *GormCheckoutRepository) FindByIdempotencyKey(ctx context.Context, key string) (*checkout.Checkout, error) {
	return r.findOne(ctx, "idempotency_key = ?", key)
}

// FindExpiredReserved returns reserved checkouts past their expiry, oldest first
func (r *GormCheckoutRepository) FindExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*checkout.Checkout, error) {
	return r.findMany(ctx, "expires_at ASC", limit,
		"status = ? AND expires_at <= ?", checkout.StatusReserved.String(), now)
}

// FindStalePending returns checkouts left PENDING since createdBefore or earlier
func (r *GormCheckoutRepository) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*checkout.Checkout, error) {
	return r.findMany(ctx, "created_at ASC", limit,
		"status = ? AND created_at <= ?", checkout.StatusPending.String(), createdBefore)
}

func (r *GormCheckoutRepository) findMany(ctx context.Context, order string, limit int, query string, args ...any) ([]*checkout.Checkout, error) {
	var rows []models.CheckoutModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, args...).
		Order(order).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*checkout.Checkout, 0, len(rows))
	for i := range rows {
		c, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (r *GormCheckoutRepository) findOne(ctx context.Context, query string, arg any) (*checkout.Checkout, error) {
	var m models.CheckoutModel
	err := r.db.WithContext(ctx).Preload("Items").Where(query, arg).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, checkout.ErrCheckoutNotFound
		}
		return nil, err
	}
	return m.ToDomain()
}

var _ checkout.Repository = (*GormCheckoutRepository)(nil)
