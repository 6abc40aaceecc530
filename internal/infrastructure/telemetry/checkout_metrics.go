package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// CheckoutMetrics records reservation pipeline activity. A nil
// *CheckoutMetrics is valid and records nothing.
type CheckoutMetrics struct {
	reservations  *Counter
	retries       *Counter
	compensations *Counter
	expired       *Counter
	lockWait      *Histogram
	reserveTime   *Histogram
}

// NewCheckoutMetrics registers the checkout instruments on meter.
func NewCheckoutMetrics(meter metric.Meter) (*CheckoutMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   CheckoutMetrics
		err error
	)
	if m.reservations, err = NewCounter(meter, "checkout_reservations_total",
		"Checkout creations by outcome", "{checkouts}"); err != nil {
		return nil, err
	}
	if m.retries, err = NewCounter(meter, "checkout_reservation_retries_total",
		"Reservation attempts retried after contention", "{retries}"); err != nil {
		return nil, err
	}
	if m.compensations, err = NewCounter(meter, "checkout_stock_compensations_total",
		"Partial deductions rolled back", "{products}"); err != nil {
		return nil, err
	}
	if m.expired, err = NewCounter(meter, "checkout_expired_total",
		"Reserved checkouts cancelled by the expiry sweeper", "{checkouts}"); err != nil {
		return nil, err
	}
	if m.lockWait, err = NewHistogram(meter, "stock_lock_wait_seconds",
		"Time spent acquiring stock locks", "s", LockWaitBuckets...); err != nil {
		return nil, err
	}
	if m.reserveTime, err = NewHistogram(meter, "checkout_reservation_seconds",
		"End to end reservation latency", "s", LockWaitBuckets...); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordReservation counts one create call and its latency.
func (m *CheckoutMetrics) RecordReservation(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.reservations.Inc(ctx, AttrOutcome.String(outcome))
	m.reserveTime.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}

// RecordRetry counts a retried attempt caused by reason.
func (m *CheckoutMetrics) RecordRetry(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	m.retries.Inc(ctx, AttrOperation.String(operation), AttrReason.String(reason))
}

// RecordCompensation counts products restored after a failed reservation.
func (m *CheckoutMetrics) RecordCompensation(ctx context.Context, products int) {
	if m == nil {
		return
	}
	m.compensations.Add(ctx, int64(products))
}

// RecordExpired counts checkouts cancelled by the sweeper.
func (m *CheckoutMetrics) RecordExpired(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.expired.Add(ctx, int64(n))
}

// RecordLockWait records how long acquiring a set of locks took.
func (m *CheckoutMetrics) RecordLockWait(ctx context.Context, d time.Duration, acquired bool) {
	if m == nil {
		return
	}
	outcome := "acquired"
	if !acquired {
		outcome = "timed_out"
	}
	m.lockWait.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}
