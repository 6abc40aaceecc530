package checkout

import (
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
)

// Event types
const (
	EventTypeCheckoutReserved  = "CheckoutReserved"
	EventTypeCheckoutCompleted = "CheckoutCompleted"
	EventTypeCheckoutCancelled = "CheckoutCancelled"
	EventTypeCheckoutFailed    = "CheckoutFailed"
)

// AggregateTypeCheckout is the aggregate type carried by checkout events
const AggregateTypeCheckout = "Checkout"

// CheckoutReservedEvent is raised once stock for every item was deducted
type CheckoutReservedEvent struct {
	shared.BaseDomainEvent
	MemberID    string             `json:"member_id"`
	TotalAmount valueobject.Money  `json:"total_amount"`
	Stock       []StockRequirement `json:"stock"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// CheckoutCompletedEvent is raised after payment confirmation
type CheckoutCompletedEvent struct {
	shared.BaseDomainEvent
	PaymentID   string            `json:"payment_id"`
	TotalAmount valueobject.Money `json:"total_amount"`
}

// CheckoutCancelledEvent is raised after reserved stock was restored
type CheckoutCancelledEvent struct {
	shared.BaseDomainEvent
	Reason CancelReason       `json:"reason"`
	Stock  []StockRequirement `json:"stock"`
}

// CheckoutFailedEvent is raised when reservation could not complete
type CheckoutFailedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

func newEvent(eventType string, c *Checkout, now time.Time) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeCheckout, c.ID.String(), now)
}
