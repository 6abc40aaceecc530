// Package memory provides process-local repositories with the same
// concurrency contract as the GORM ones.
package memory

import (
	"context"
	"sync"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
)

// StockRepository is an in-memory stock.Repository
type StockRepository struct {
	mu     sync.Mutex
	rows   map[int64]stock.Stock
	nextID int64
}

// NewStockRepository creates an empty repository
func NewStockRepository() *StockRepository {
	return &StockRepository{rows: make(map[int64]stock.Stock)}
}

// FindByProductID returns the stored value
func (r *StockRepository) FindByProductID(_ context.Context, productID int64) (stock.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rows[productID]
	if !ok {
		return stock.Stock{}, stock.ErrStockNotFound
	}
	return s, nil
}

// Create stores s with a fresh id and version 0
func (r *StockRepository) Create(_ context.Context, s stock.Stock) (stock.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[s.ProductID()]; exists {
		return stock.Stock{}, stock.ErrStockAlreadyExists
	}
	r.nextID++
	stored, err := stock.Reconstitute(r.nextID, s.ProductID(), s.Quantity().Value(), 0, s.CreatedAt(), s.UpdatedAt())
	if err != nil {
		return stock.Stock{}, err
	}
	r.rows[s.ProductID()] = stored
	return stored, nil
}

// CompareAndSwap stores next when the stored version equals expectedVersion
func (r *StockRepository) CompareAndSwap(_ context.Context, next stock.Stock, expectedVersion int64) (stock.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rows[next.ProductID()]
	if !ok || current.Version() != expectedVersion {
		return stock.Stock{}, stock.ErrConcurrentModification
	}
	id, _ := current.ID()
	stored, err := stock.Reconstitute(id, next.ProductID(), next.Quantity().Value(), expectedVersion+1, current.CreatedAt(), next.UpdatedAt())
	if err != nil {
		return stock.Stock{}, err
	}
	r.rows[next.ProductID()] = stored
	return stored, nil
}

var _ stock.Repository = (*StockRepository)(nil)
