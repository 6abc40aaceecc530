package checkout

import (
	"fmt"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// Status is the lifecycle state of a checkout
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReserved  Status = "RESERVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[Status][]Status{
	StatusPending:  {StatusReserved, StatusFailed},
	StatusReserved: {StatusCompleted, StatusCancelled},
}

// ParseStatus converts a stored string back to a Status
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusReserved, StatusCompleted, StatusCancelled, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown checkout status %q", s)
	}
}

// CanTransitionTo reports whether moving from s to next is legal
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// CancelReason records why a reserved checkout was cancelled
type CancelReason string

const (
	CancelReasonUserRequested CancelReason = "USER_REQUESTED"
	CancelReasonPaymentFailed CancelReason = "PAYMENT_FAILED"
	CancelReasonExpired       CancelReason = "EXPIRED"
)

// ParseCancelReason validates a client-supplied reason
func ParseCancelReason(s string) (CancelReason, error) {
	switch r := CancelReason(s); r {
	case CancelReasonUserRequested, CancelReasonPaymentFailed, CancelReasonExpired:
		return r, nil
	default:
		return "", shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown cancel reason %q", s))
	}
}
