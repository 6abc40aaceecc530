package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CreateCheckoutItem is one requested line
type CreateCheckoutItem struct {
	ProductStockID int64
	ProductID      int64
	SellerID       int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	Currency       string
}

// CreateCheckoutCommand starts a purchase attempt
type CreateCheckoutCommand struct {
	IdempotencyKey string
	MemberID       string
	Items          []CreateCheckoutItem
}

// CompleteCheckoutCommand carries the payment gateway confirmation
type CompleteCheckoutCommand struct {
	CheckoutID      uuid.UUID
	PaymentID       string
	PGTransactionID string
	// PaidAmount is checked against the checkout total when set
	PaidAmount *decimal.Decimal
}

// ExpirationStats summarizes one sweep
type ExpirationStats struct {
	Total       int       `json:"total"`
	Cancelled   int       `json:"cancelled"`
	Abandoned   int       `json:"abandoned"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (c CreateCheckoutCommand) toItems() ([]checkout.Item, error) {
	items := make([]checkout.Item, 0, len(c.Items))
	for _, it := range c.Items {
		currency := valueobject.Currency(it.Currency)
		if currency == "" {
			currency = valueobject.DefaultCurrency
		}
		price, err := valueobject.NewMoney(it.UnitPrice, currency)
		if err != nil {
			return nil, checkout.ErrInvalidCheckoutItem.WithMessage(err.Error())
		}
		item, err := checkout.NewItem(it.ProductStockID, it.ProductID, it.SellerID, it.Quantity, price)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckoutItemResponse is one line of a checkout
type CheckoutItemResponse struct {
	ProductStockID int64           `json:"product_stock_id"`
	ProductID      int64           `json:"product_id"`
	SellerID       int64           `json:"seller_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Currency       string          `json:"currency"`
}

// CheckoutResponse is the checkout as returned to callers
type CheckoutResponse struct {
	ID              uuid.UUID              `json:"id"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	MemberID        string                 `json:"member_id"`
	Status          string                 `json:"status"`
	Items           []CheckoutItemResponse `json:"items"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	Currency        string                 `json:"currency"`
	ExpiresAt       time.Time              `json:"expires_at"`
	PaymentID       string                 `json:"payment_id,omitempty"`
	PGTransactionID string                 `json:"pg_transaction_id,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ToCheckoutResponse converts a Checkout
func ToCheckoutResponse(c *checkout.Checkout) *CheckoutResponse {
	if c == nil {
		return nil
	}
	total := c.TotalAmount()
	items := make([]CheckoutItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = CheckoutItemResponse{
			ProductStockID: it.ProductStockID,
			ProductID:      it.ProductID,
			SellerID:       it.SellerID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.Amount(),
			Subtotal:       it.Subtotal().Amount(),
			Currency:       string(it.UnitPrice.Currency()),
		}
	}
	return &CheckoutResponse{
		ID:              c.ID,
		IdempotencyKey:  c.IdempotencyKey,
		MemberID:        c.MemberID,
		Status:          c.Status.String(),
		Items:           items,
		TotalAmount:     total.Amount(),
		Currency:        string(total.Currency()),
		ExpiresAt:       c.ExpiresAt,
		PaymentID:       c.PaymentID,
		PGTransactionID: c.PGTransactionID,
		CompletedAt:     c.CompletedAt,
		CancelledAt:     c.CancelledAt,
		CancelReason:    string(c.CancelReason),
		FailureReason:   c.FailureReason,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
