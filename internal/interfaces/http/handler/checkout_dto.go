package handler

import (
	"github.com/shopspring/decimal"
)

// IdempotencyKeyHeader carries the client-chosen key of a create request
const IdempotencyKeyHeader = "Idempotency-Key"

// CheckoutItemRequest is one line of a create request
type CheckoutItemRequest struct {
	ProductStockID int64           `json:"product_stock_id" binding:"required,gt=0"`
	ProductID      int64           `json:"product_id" binding:"required,gt=0"`
	SellerID       int64           `json:"seller_id" binding:"required,gt=0"`
	Quantity       int64           `json:"quantity" binding:"required,min=1"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Currency       string          `json:"currency" binding:"omitempty,len=3"`
}

// CreateCheckoutRequest starts a checkout
type CreateCheckoutRequest struct {
	MemberID string                `json:"member_id" binding:"required,max=64"`
	Items    []CheckoutItemRequest `json:"items" binding:"required,min=1,max=100,dive"`
}

// CompleteCheckoutRequest is the payment confirmation callback body
type CompleteCheckoutRequest struct {
	PaymentID       string           `json:"payment_id" binding:"required,max=128"`
	PGTransactionID string           `json:"pg_transaction_id" binding:"max=128"`
	PaidAmount      *decimal.Decimal `json:"paid_amount"`
}

// CancelCheckoutRequest optionally names why the checkout is cancelled
type CancelCheckoutRequest struct {
	Reason string `json:"reason" binding:"omitempty,oneof=USER_REQUESTED PAYMENT_FAILED"`
}

// CreateStockRequest stocks a product for the first time
type CreateStockRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int64 `json:"quantity" binding:"min=0"`
}

// SetStockRequest overwrites the on-hand quantity
type SetStockRequest struct {
	Quantity int64 `json:"quantity" binding:"min=0"`
}
