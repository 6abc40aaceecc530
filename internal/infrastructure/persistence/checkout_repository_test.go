package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCheckout(t *testing.T, key string, now time.Time) *checkout.Checkout {
	t.Helper()
	a, err := checkout.NewItem(11, 1001, 1, 2, valueobject.KRWFromInt(9900))
	require.NoError(t, err)
	b, err := checkout.NewItem(12, 1002, 2, 1, valueobject.KRWFromInt(15000))
	require.NoError(t, err)

	c, err := checkout.New(uuid.Must(uuid.NewV7()), key, "member-1", []checkout.Item{a, b}, now, 30*time.Minute)
	require.NoError(t, err)
	return c
}

func TestGormCheckoutRepository_InsertAndFind(t *testing.T) {
	repo := NewGormCheckoutRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	c := newTestCheckout(t, "key-1", now)
	require.NoError(t, repo.Insert(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	byID, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byID.ID)
	assert.Equal(t, checkout.StatusPending, byID.Status)
	assert.Equal(t, int64(1), byID.Version)
	require.Len(t, byID.Items, 2)
	assert.Equal(t, int64(1001), byID.Items[0].ProductID)
	assert.True(t, byID.Items[0].UnitPrice.Equals(valueobject.KRWFromInt(9900)))
	assert.True(t, byID.TotalAmount().Equals(valueobject.KRWFromInt(34800)))
	assert.True(t, byID.SameRequest("member-1", c.Items))

	byKey, err := repo.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byKey.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, checkout.ErrCheckoutNotFound)
	_, err = repo.FindByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, checkout.ErrCheckoutNotFound)
}

func TestGormCheckoutRepository_InsertDuplicateKey(t *testing.T) {
	repo := NewGormCheckoutRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, newTestCheckout(t, "key-1", now)))

	err := repo.Insert(ctx, newTestCheckout(t, "key-1", now))
	assert.ErrorIs(t, err, checkout.ErrIdempotencyKeyExists)
}

func TestGormCheckoutRepository_Save(t *testing.T) {
	repo := NewGormCheckoutRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	c := newTestCheckout(t, "key-1", now)
	require.NoError(t, repo.Insert(ctx, c))

	stale, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, c.MarkReserved(now))
	require.NoError(t, repo.Save(ctx, c))
	assert.Equal(t, int64(2), c.Version)

	require.NoError(t, stale.MarkFailed("late writer", now))
	err = repo.Save(ctx, stale)
	assert.ErrorIs(t, err, checkout.ErrConcurrentModification)

	require.NoError(t, c.Cancel(checkout.CancelReasonUserRequested, now.Add(time.Minute)))
	require.NoError(t, repo.Save(ctx, c))

	reloaded, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusCancelled, reloaded.Status)
	assert.Equal(t, checkout.CancelReasonUserRequested, reloaded.CancelReason)
	assert.Equal(t, int64(3), reloaded.Version)
	require.NotNil(t, reloaded.CancelledAt)
	assert.Nil(t, reloaded.CompletedAt)
}

func TestGormCheckoutRepository_FindExpiredReserved(t *testing.T) {
	repo := NewGormCheckoutRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-2 * time.Hour)

	reserve := func(key string, createdAt time.Time) *checkout.Checkout {
		c := newTestCheckout(t, key, createdAt)
		require.NoError(t, repo.Insert(ctx, c))
		require.NoError(t, c.MarkReserved(createdAt))
		require.NoError(t, repo.Save(ctx, c))
		return c
	}

	older := reserve("old", base)
	newer := reserve("newer", base.Add(10*time.Minute))
	reserve("fresh", time.Now().UTC())
	pending := newTestCheckout(t, "pending", base)
	require.NoError(t, repo.Insert(ctx, pending))

	expired, err := repo.FindExpiredReserved(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, older.ID, expired[0].ID)
	assert.Equal(t, newer.ID, expired[1].ID)
	assert.Len(t, expired[0].Items, 2)

	limited, err := repo.FindExpiredReserved(ctx, time.Now().UTC(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGormCheckoutRepository_FindStalePending(t *testing.T) {
	repo := NewGormCheckoutRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older := newTestCheckout(t, "stale-1", base)
	require.NoError(t, repo.Insert(ctx, older))
	newer := newTestCheckout(t, "stale-2", base.Add(time.Minute))
	require.NoError(t, repo.Insert(ctx, newer))
	fresh := newTestCheckout(t, "fresh", time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, fresh))

	reserved := newTestCheckout(t, "reserved", base)
	require.NoError(t, repo.Insert(ctx, reserved))
	require.NoError(t, reserved.MarkReserved(base))
	require.NoError(t, repo.Save(ctx, reserved))

	stale, err := repo.FindStalePending(ctx, base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older.ID, stale[0].ID)
	assert.Equal(t, newer.ID, stale[1].ID)
	assert.Len(t, stale[0].Items, 2)

	limited, err := repo.FindStalePending(ctx, base.Add(10*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
