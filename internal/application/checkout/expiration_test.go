package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ExpireCheckouts(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels reserved checkouts past their window", func(t *testing.T) {
		f := newFixture(t, map[int64]int64{1: 10})

		stale, err := f.service.CreateCheckout(ctx, createCmd("key-stale", item(1, 2)))
		require.NoError(t, err)
		paid, err := f.service.CreateCheckout(ctx, createCmd("key-paid", item(1, 3)))
		require.NoError(t, err)
		_, err = f.service.CompleteCheckout(ctx, CompleteCheckoutCommand{CheckoutID: paid.ID, PaymentID: "pay-1"})
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		fresh, err := f.service.CreateCheckout(ctx, createCmd("key-fresh", item(1, 1)))
		require.NoError(t, err)
		assert.Equal(t, int64(4), f.quantity(t, 1))

		f.clock.Advance(25 * time.Minute)
		stats, err := f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Cancelled)
		assert.Equal(t, 0, stats.Failed)

		got, err := f.service.GetCheckout(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusCancelled, got.Status)
		assert.Equal(t, checkout.CancelReasonExpired, got.CancelReason)

		got, err = f.service.GetCheckout(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusReserved, got.Status)

		assert.Equal(t, int64(6), f.quantity(t, 1))
	})

	t.Run("works through several batches", func(t *testing.T) {
		f := newFixture(t, map[int64]int64{1: 100})
		f.service.cfg.SweepBatchSize = 2

		for i := 0; i < 5; i++ {
			_, err := f.service.CreateCheckout(ctx, createCmd(fmt.Sprintf("key-%d", i), item(1, 1)))
			require.NoError(t, err)
		}
		assert.Equal(t, int64(95), f.quantity(t, 1))

		f.clock.Advance(time.Hour)
		stats, err := f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.Cancelled)
		assert.Equal(t, int64(100), f.quantity(t, 1))

		stats, err = f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
	})

	t.Run("nothing to do", func(t *testing.T) {
		f := newFixture(t, map[int64]int64{1: 10})
		stats, err := f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.Equal(t, f.clock.Now(), stats.ProcessedAt)
	})

	t.Run("releases stock held by an abandoned pending checkout", func(t *testing.T) {
		f := newFixture(t, map[int64]int64{1: 10})

		items, err := createCmd("key-crashed", item(1, 4)).toItems()
		require.NoError(t, err)
		id, err := uuid.NewV7()
		require.NoError(t, err)
		c, err := checkout.New(id, "key-crashed", "member-1", items, f.clock.Now(), f.service.cfg.ExpiryWindow)
		require.NoError(t, err)
		require.NoError(t, f.checkouts.Insert(ctx, c))
		require.NoError(t, f.service.stock.Deduct(ctx, linesOf(c)))
		assert.Equal(t, int64(6), f.quantity(t, 1))

		f.clock.Advance(24 * time.Hour)
		stats, err := f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Abandoned)
		assert.Equal(t, 0, stats.Cancelled)
		assert.Equal(t, int64(10), f.quantity(t, 1))

		replayed, err := f.service.CreateCheckout(ctx, createCmd("key-crashed", item(1, 4)))
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusFailed, replayed.Status)
		assert.Equal(t, abandonedReason, replayed.FailureReason)
		assert.Contains(t, f.events.types(), checkout.EventTypeCheckoutFailed)

		stats, err = f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.Equal(t, int64(10), f.quantity(t, 1))
	})

	t.Run("leaves a pending checkout inside its grace period alone", func(t *testing.T) {
		f := newFixture(t, map[int64]int64{1: 10})

		items, err := createCmd("key-live", item(1, 2)).toItems()
		require.NoError(t, err)
		c, err := checkout.New(uuid.New(), "key-live", "member-1", items, f.clock.Now(), f.service.cfg.ExpiryWindow)
		require.NoError(t, err)
		require.NoError(t, f.checkouts.Insert(ctx, c))

		f.clock.Advance(f.service.pendingGrace() - time.Second)
		stats, err := f.service.ExpireCheckouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)

		stored, err := f.checkouts.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusPending, stored.Status)
	})
}
