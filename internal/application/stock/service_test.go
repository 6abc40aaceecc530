package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Set(ctx context.Context, productID, quantity int64) error {
	return m.Called(ctx, productID, quantity).Error(0)
}

func (m *mockCounter) Fill(ctx context.Context, productID, quantity int64) (bool, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *mockCounter) Get(ctx context.Context, productID int64) (int64, bool, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

// racingCounter reports a miss and runs onMiss right after the store read,
// before the refill reaches the inner counter
type racingCounter struct {
	inner  stock.AvailabilityCache
	onMiss func()
	missed bool
}

func (r *racingCounter) Set(ctx context.Context, productID, quantity int64) error {
	return r.inner.Set(ctx, productID, quantity)
}

func (r *racingCounter) Fill(ctx context.Context, productID, quantity int64) (bool, error) {
	if r.missed {
		r.onMiss()
	}
	return r.inner.Fill(ctx, productID, quantity)
}

func (r *racingCounter) Get(context.Context, int64) (int64, bool, error) {
	r.missed = true
	return 0, false, nil
}

func newTestService(t *testing.T) (*Service, *ledgerFixture) {
	f := newLedgerFixture(t, nil)
	return NewService(f.repo, f.ledger, f.counter, nil, zap.NewNop()), f
}

func TestService_CreateStock(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestService(t)

	resp, err := svc.CreateStock(ctx, 1001, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), resp.ProductID)
	assert.Equal(t, int64(10), resp.Quantity)
	assert.Equal(t, int64(0), resp.Version)
	assert.Positive(t, resp.ID)

	cached, found, _ := f.counter.Get(ctx, 1001)
	assert.True(t, found)
	assert.Equal(t, int64(10), cached)

	_, err = svc.CreateStock(ctx, 1001, 3)
	assert.ErrorIs(t, err, stock.ErrStockAlreadyExists)

	_, err = svc.CreateStock(ctx, 1002, -1)
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)
}

func TestService_SetStockQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.CreateStock(ctx, 1001, 10)
	require.NoError(t, err)

	resp, err := svc.SetStockQuantity(ctx, 1001, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Quantity)
	assert.Equal(t, int64(1), resp.Version)

	got, err := svc.GetStock(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Quantity)
}

func TestService_GetAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("served from the counter", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateStock(ctx, 1001, 10)
		require.NoError(t, err)

		resp, err := svc.GetAvailability(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, SourceCounter, resp.Source)
		assert.Equal(t, int64(10), resp.Quantity)
		assert.True(t, resp.InStock)
	})

	t.Run("miss falls back to the store and refills", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateStock(ctx, 1001, 0)
		require.NoError(t, err)
		c := &mockCounter{}
		c.On("Get", mock.Anything, int64(1001)).Return(int64(0), false, nil)
		c.On("Fill", mock.Anything, int64(1001), int64(0)).Return(true, nil)
		svc.counter = c

		resp, err := svc.GetAvailability(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, SourceStore, resp.Source)
		assert.False(t, resp.InStock)
		c.AssertExpectations(t)
	})

	t.Run("counter failure falls back to the store", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateStock(ctx, 1001, 4)
		require.NoError(t, err)
		c := &mockCounter{}
		c.On("Get", mock.Anything, int64(1001)).Return(int64(0), false, errors.New("redis down"))
		c.On("Fill", mock.Anything, int64(1001), int64(4)).Return(false, errors.New("redis down"))
		svc.counter = c

		resp, err := svc.GetAvailability(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, SourceStore, resp.Source)
		assert.Equal(t, int64(4), resp.Quantity)
	})

	t.Run("refill never overwrites a value committed after the read", func(t *testing.T) {
		svc, f := newTestService(t)
		_, err := svc.CreateStock(ctx, 1001, 10)
		require.NoError(t, err)
		svc.counter = &racingCounter{inner: f.counter, onMiss: func() {
			// a reservation commits between the store read and the refill
			_, err := svc.ledger.Set(ctx, 1001, 6)
			require.NoError(t, err)
		}}

		resp, err := svc.GetAvailability(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, SourceStore, resp.Source)

		cached, found, err := f.counter.Get(ctx, 1001)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(6), cached)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.GetAvailability(ctx, 404)
		assert.ErrorIs(t, err, stock.ErrStockNotFound)
	})
}
