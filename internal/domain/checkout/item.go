package checkout

import (
	"fmt"
	"sort"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
)

// Item is one purchased line of a checkout
type Item struct {
	ProductStockID int64
	ProductID      int64
	SellerID       int64
	Quantity       int64
	UnitPrice      valueobject.Money
}

// NewItem validates and builds an Item
func NewItem(productStockID, productID, sellerID, quantity int64, unitPrice valueobject.Money) (Item, error) {
	item := Item{
		ProductStockID: productStockID,
		ProductID:      productID,
		SellerID:       sellerID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Validate checks quantity >= 1, unit price > 0 and that references are set
func (i Item) Validate() error {
	switch {
	case i.ProductID <= 0:
		return ErrInvalidCheckoutItem.WithMessage(fmt.Sprintf("product id must be positive: %d", i.ProductID))
	case i.ProductStockID <= 0:
		return ErrInvalidCheckoutItem.WithMessage(fmt.Sprintf("product stock id must be positive: %d", i.ProductStockID))
	case i.SellerID <= 0:
		return ErrInvalidCheckoutItem.WithMessage(fmt.Sprintf("seller id must be positive: %d", i.SellerID))
	case i.Quantity < 1:
		return ErrInvalidCheckoutItem.WithMessage(fmt.Sprintf("quantity must be at least 1: %d", i.Quantity))
	case !i.UnitPrice.IsPositive():
		return ErrInvalidCheckoutItem.WithMessage(fmt.Sprintf("unit price must be positive: %s", i.UnitPrice))
	}
	return nil
}

// Subtotal returns unit price times quantity
func (i Item) Subtotal() valueobject.Money {
	return i.UnitPrice.MultiplyByInt(i.Quantity)
}

func (i Item) sameAs(o Item) bool {
	return i.ProductStockID == o.ProductStockID &&
		i.ProductID == o.ProductID &&
		i.SellerID == o.SellerID &&
		i.Quantity == o.Quantity &&
		i.UnitPrice.Equals(o.UnitPrice)
}

// StockRequirement is the total quantity a checkout needs from one product
type StockRequirement struct {
	ProductID int64
	Quantity  int64
}

// requirementsOf sums quantities per product and orders them by ascending
// product id. That order is the lock acquisition order.
func requirementsOf(items []Item) []StockRequirement {
	totals := make(map[int64]int64, len(items))
	for _, it := range items {
		totals[it.ProductID] += it.Quantity
	}
	reqs := make([]StockRequirement, 0, len(totals))
	for productID, qty := range totals {
		reqs = append(reqs, StockRequirement{ProductID: productID, Quantity: qty})
	}
	sort.Slice(reqs, func(a, b int) bool { return reqs[a].ProductID < reqs[b].ProductID })
	return reqs
}
