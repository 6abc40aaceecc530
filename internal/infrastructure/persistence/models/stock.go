package models

import (
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
)

// StockModel is one row of the stocks table
type StockModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProductID int64     `gorm:"not null;uniqueIndex:idx_stocks_product_id"`
	Quantity  int64     `gorm:"not null;default:0;check:quantity >= 0"`
	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockModel) TableName() string {
	return "stocks"
}

// ToDomain converts the row to a Stock
func (m *StockModel) ToDomain() (stock.Stock, error) {
	return stock.Reconstitute(m.ID, m.ProductID, m.Quantity, m.Version, m.CreatedAt, m.UpdatedAt)
}

// StockModelFromDomain converts a Stock to a row
func StockModelFromDomain(s stock.Stock) *StockModel {
	m := &StockModel{
		ProductID: s.ProductID(),
		Quantity:  s.Quantity().Value(),
		Version:   s.Version(),
		CreatedAt: s.CreatedAt(),
		UpdatedAt: s.UpdatedAt(),
	}
	if id, ok := s.ID(); ok {
		m.ID = id
	}
	return m
}
