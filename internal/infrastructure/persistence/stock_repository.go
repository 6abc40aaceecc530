package persistence

import (
	"context"
	"errors"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStockRepository implements stock.Repository
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new stock repository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// FindByProductID loads the stock row of a product
func (r *GormStockRepository) FindByProductID(ctx context.Context, productID int64) (stock.Stock, error) {
	var m models.StockModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stock.Stock{}, stock.ErrStockNotFound
		}
		return stock.Stock{}, err
	}
	return m.ToDomain()
}

// Create inserts a new stock row
func (r *GormStockRepository) Create(ctx context.Context, s stock.Stock) (stock.Stock, error) {
	m := models.StockModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return stock.Stock{}, stock.ErrStockAlreadyExists
		}
		return stock.Stock{}, err
	}
	return m.ToDomain()
}

// CompareAndSwap writes next only when the stored version still equals
// expectedVersion
func (r *GormStockRepository) CompareAndSwap(ctx context.Context, next stock.Stock, expectedVersion int64) (stock.Stock, error) {
	newVersion := expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&models.StockModel{}).
		Where("product_id = ? AND version = ?", next.ProductID(), expectedVersion).
		Updates(map[string]any{
			"quantity":   next.Quantity().Value(),
			"version":    newVersion,
			"updated_at": next.UpdatedAt(),
		})
	if result.Error != nil {
		return stock.Stock{}, result.Error
	}
	if result.RowsAffected == 0 {
		return stock.Stock{}, stock.ErrConcurrentModification
	}

	id, _ := next.ID()
	return stock.Reconstitute(id, next.ProductID(), next.Quantity().Value(), newVersion, next.CreatedAt(), next.UpdatedAt())
}

var _ stock.Repository = (*GormStockRepository)(nil)
