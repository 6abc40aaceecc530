package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryPolicy_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("retries contention until success", func(t *testing.T) {
		calls := 0
		var retried []int
		err := fastPolicy(3).Run(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return shared.ErrLockAcquisitionFailed
			}
			return nil
		}, func(_ error, attempt int) { retried = append(retried, attempt) })

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("surfaces contention after attempts are spent", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Run(ctx, func(context.Context) error {
			calls++
			return stock.ErrConcurrentModification
		}, nil)

		assert.ErrorIs(t, err, stock.ErrConcurrentModification)
		assert.Equal(t, 3, calls)
	})

	t.Run("business errors are not retried", func(t *testing.T) {
		calls := 0
		err := fastPolicy(5).Run(ctx, func(context.Context) error {
			calls++
			return stock.ErrInsufficientStock
		}, nil)

		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("infrastructure errors are not retried", func(t *testing.T) {
		boom := errors.New("connection refused")
		calls := 0
		err := fastPolicy(5).Run(ctx, func(context.Context) error {
			calls++
			return boom
		}, nil)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = fastPolicy(0).Run(ctx, func(context.Context) error {
			calls++
			return shared.ErrLockAcquisitionFailed
		}, nil)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Second}.Run(cctx, func(context.Context) error {
			return shared.ErrLockAcquisitionFailed
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
