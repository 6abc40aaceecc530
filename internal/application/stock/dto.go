package stock

import (
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
)

// Availability sources
const (
	SourceCounter = "counter"
	SourceStore   = "store"
)

// StockResponse is the stock row as returned to callers
type StockResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToStockResponse converts a Stock
func ToStockResponse(s stock.Stock) *StockResponse {
	id, _ := s.ID()
	return &StockResponse{
		ID:        id,
		ProductID: s.ProductID(),
		Quantity:  s.Quantity().Value(),
		Version:   s.Version(),
		CreatedAt: s.CreatedAt(),
		UpdatedAt: s.UpdatedAt(),
	}
}

// AvailabilityResponse is a possibly stale read of on-hand quantity
type AvailabilityResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	InStock   bool   `json:"in_stock"`
	Source    string `json:"source"`
}

func newAvailability(productID, quantity int64, source string) *AvailabilityResponse {
	return &AvailabilityResponse{
		ProductID: productID,
		Quantity:  quantity,
		InStock:   quantity > 0,
		Source:    source,
	}
}
