package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CheckoutModel is one row of the checkouts table
type CheckoutModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	IdempotencyKey  string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_checkouts_idempotency_key"`
	MemberID        string     `gorm:"type:varchar(64);not null;index"`
	Status          string     `gorm:"type:varchar(20);not null;index:idx_checkouts_status_expires_at,priority:1;index:idx_checkouts_status_created_at,priority:1"`
	Version         int64      `gorm:"not null;default:1"`
	ExpiresAt       time.Time  `gorm:"not null;index:idx_checkouts_status_expires_at,priority:2"`
	PaymentID       string     `gorm:"type:varchar(64)"`
	PGTransactionID string     `gorm:"type:varchar(128)"`
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(32)"`
	FailureReason   string `gorm:"type:varchar(255)"`
	CreatedAt       time.Time  `gorm:"index:idx_checkouts_status_created_at,priority:2"`
	UpdatedAt       time.Time

	Items []CheckoutItemModel `gorm:"foreignKey:CheckoutID;references:ID"`
}

// TableName returns the table name for GORM
func (CheckoutModel) TableName() string {
	return "checkouts"
}

// CheckoutItemModel is one line of a checkout
type CheckoutItemModel struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	CheckoutID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo         int             `gorm:"not null"`
	ProductStockID int64           `gorm:"not null"`
	ProductID      int64           `gorm:"not null"`
	SellerID       int64           `gorm:"not null"`
	Quantity       int64           `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
}

// TableName returns the table name for GORM
func (CheckoutItemModel) TableName() string {
	return "checkout_items"
}

// CheckoutModelFromDomain converts a checkout, items included, to rows
func CheckoutModelFromDomain(c *checkout.Checkout) *CheckoutModel {
	m := &CheckoutModel{
		ID:              c.ID,
		IdempotencyKey:  c.IdempotencyKey,
		MemberID:        c.MemberID,
		Status:          c.Status.String(),
		Version:         c.Version,
		ExpiresAt:       c.ExpiresAt,
		PaymentID:       c.PaymentID,
		PGTransactionID: c.PGTransactionID,
		CompletedAt:     c.CompletedAt,
		CancelledAt:     c.CancelledAt,
		CancelReason:    string(c.CancelReason),
		FailureReason:   c.FailureReason,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		Items:           make([]CheckoutItemModel, len(c.Items)),
	}
	for i, it := range c.Items {
		m.Items[i] = CheckoutItemModel{
			CheckoutID:     c.ID,
			LineNo:         i,
			ProductStockID: it.ProductStockID,
			ProductID:      it.ProductID,
			SellerID:       it.SellerID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.Amount(),
			Currency:       string(it.UnitPrice.Currency()),
		}
	}
	return m
}

// ToDomain converts the rows back into a checkout
func (m *CheckoutModel) ToDomain() (*checkout.Checkout, error) {
	status, err := checkout.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", m.ID, err)
	}

	lines := append([]CheckoutItemModel(nil), m.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNo < lines[j].LineNo })

	items := make([]checkout.Item, len(lines))
	for i, line := range lines {
		price, err := valueobject.NewMoney(line.UnitPrice, valueobject.Currency(line.Currency))
		if err != nil {
			return nil, fmt.Errorf("checkout %s line %d: %w", m.ID, line.LineNo, err)
		}
		items[i] = checkout.Item{
			ProductStockID: line.ProductStockID,
			ProductID:      line.ProductID,
			SellerID:       line.SellerID,
			Quantity:       line.Quantity,
			UnitPrice:      price,
		}
	}

	return &checkout.Checkout{
		ID:              m.ID,
		IdempotencyKey:  m.IdempotencyKey,
		MemberID:        m.MemberID,
		Items:           items,
		Status:          status,
		Version:         m.Version,
		ExpiresAt:       m.ExpiresAt,
		PaymentID:       m.PaymentID,
		PGTransactionID: m.PGTransactionID,
		CompletedAt:     m.CompletedAt,
		CancelledAt:     m.CancelledAt,
		CancelReason:    checkout.CancelReason(m.CancelReason),
		FailureReason:   m.FailureReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}
