package stock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/cache"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/lock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ledgerFixture struct {
	repo    *memory.StockRepository
	lock    *lock.InMemoryLock
	counter *cache.InMemoryStockCounter
	ledger  *Ledger
}

func newLedgerFixture(t *testing.T, stocks map[int64]int64) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		repo:    memory.NewStockRepository(),
		lock:    lock.NewInMemoryLock(),
		counter: cache.NewInMemoryStockCounter(),
	}
	for productID, qty := range stocks {
		s, err := stock.New(productID, qty, time.Now())
		require.NoError(t, err)
		_, err = f.repo.Create(context.Background(), s)
		require.NoError(t, err)
	}
	f.ledger = NewLedger(f.repo, f.lock, f.counter, nil, LedgerConfig{
		LockWait:  time.Second,
		LockLease: 5 * time.Second,
		Retry:     fastPolicy(3),
	}, zap.NewNop())
	return f
}

func (f *ledgerFixture) quantity(t *testing.T, productID int64) int64 {
	t.Helper()
	s, err := f.repo.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	return s.Quantity().Value()
}

func (f *ledgerFixture) version(t *testing.T, productID int64) int64 {
	t.Helper()
	s, err := f.repo.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	return s.Version()
}

func TestLedger_Deduct(t *testing.T) {
	ctx := context.Background()

	t.Run("deducts every line and bumps each version once", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 10, 2: 5})

		require.NoError(t, f.ledger.Deduct(ctx, []Line{{ProductID: 2, Quantity: 3}, {ProductID: 1, Quantity: 4}}))

		assert.Equal(t, int64(6), f.quantity(t, 1))
		assert.Equal(t, int64(2), f.quantity(t, 2))
		assert.Equal(t, int64(1), f.version(t, 1))
		assert.Equal(t, int64(1), f.version(t, 2))

		cached, found, _ := f.counter.Get(ctx, 1)
		assert.True(t, found)
		assert.Equal(t, int64(6), cached)
	})

	t.Run("lines for the same product are merged", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 10})

		require.NoError(t, f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 4}, {ProductID: 1, Quantity: 4}}))

		assert.Equal(t, int64(2), f.quantity(t, 1))
		assert.Equal(t, int64(1), f.version(t, 1))
	})

	t.Run("insufficient stock leaves earlier products untouched", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 10, 2: 2})

		err := f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 3}})

		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		assert.Equal(t, int64(10), f.quantity(t, 1))
		assert.Equal(t, int64(2), f.quantity(t, 2))
		// deducted and then compensated
		assert.Equal(t, int64(2), f.version(t, 1))
		assert.Equal(t, int64(0), f.version(t, 2))
	})

	t.Run("unknown product fails and restores", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 10})

		err := f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 5}, {ProductID: 99, Quantity: 1}})

		assert.ErrorIs(t, err, stock.ErrStockNotFound)
		assert.Equal(t, int64(10), f.quantity(t, 1))
	})

	t.Run("invalid lines are rejected before locking", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 10})

		assert.ErrorIs(t, f.ledger.Deduct(ctx, nil), stock.ErrInvalidQuantity)
		assert.ErrorIs(t, f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 0}}), stock.ErrInvalidQuantity)
		assert.ErrorIs(t, f.ledger.Deduct(ctx, []Line{{ProductID: 0, Quantity: 1}}), stock.ErrInvalidProduct)
		assert.Equal(t, int64(0), f.version(t, 1))
	})

	t.Run("locks are released on every path", func(t *testing.T) {
		f := newLedgerFixture(t, map[int64]int64{1: 1})

		_ = f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 5}})

		token, err := f.lock.TryAcquire(ctx, stock.LockKeyFor(1), 0, time.Second)
		require.NoError(t, err)
		require.NoError(t, f.lock.Release(ctx, token))
	})
}

func TestLedger_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10, 2: 7})
	lines := []Line{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 7}}

	require.NoError(t, f.ledger.Deduct(ctx, lines))
	assert.Equal(t, int64(0), f.quantity(t, 2))

	require.NoError(t, f.ledger.Restore(ctx, lines))
	assert.Equal(t, int64(10), f.quantity(t, 1))
	assert.Equal(t, int64(7), f.quantity(t, 2))
}

func TestLedger_LockContention(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10})
	f.ledger.cfg.LockWait = 10 * time.Millisecond

	held, err := f.lock.TryAcquire(ctx, stock.LockKeyFor(1), 0, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = f.lock.Release(ctx, held) }()

	err = f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 1}})

	assert.ErrorIs(t, err, shared.ErrLockAcquisitionFailed)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, int64(10), f.quantity(t, 1))
}

// conflictingRepo fails the first n compare-and-swaps as if another writer
// slipped past the lock
type conflictingRepo struct {
	*memory.StockRepository
	remaining atomic.Int32
	failWith  error
}

func (r *conflictingRepo) CompareAndSwap(ctx context.Context, next stock.Stock, expected int64) (stock.Stock, error) {
	if r.remaining.Add(-1) >= 0 {
		return stock.Stock{}, r.failWith
	}
	return r.StockRepository.CompareAndSwap(ctx, next, expected)
}

func TestLedger_RetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10})
	repo := &conflictingRepo{StockRepository: f.repo, failWith: stock.ErrConcurrentModification}
	repo.remaining.Store(2)
	f.ledger.repo = repo

	require.NoError(t, f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 4}}))
	assert.Equal(t, int64(6), f.quantity(t, 1))
	assert.Equal(t, int64(1), f.version(t, 1))
}

func TestLedger_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10, 2: 10})
	repo := &conflictingRepo{StockRepository: f.repo, failWith: stock.ErrConcurrentModification}
	repo.remaining.Store(100)
	f.ledger.repo = repo

	err := f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 4}})

	assert.ErrorIs(t, err, stock.ErrConcurrentModification)
	assert.Equal(t, int64(10), f.quantity(t, 1))
}

// failAfterRepo fails every compare-and-swap for one product
type failAfterRepo struct {
	*memory.StockRepository
	productID int64
	err       error
}

func (r *failAfterRepo) CompareAndSwap(ctx context.Context, next stock.Stock, expected int64) (stock.Stock, error) {
	if next.ProductID() == r.productID {
		return stock.Stock{}, r.err
	}
	return r.StockRepository.CompareAndSwap(ctx, next, expected)
}

func TestLedger_InfrastructureFailureCompensates(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10, 2: 10})
	boom := errors.New("store unreachable")
	f.ledger.repo = &failAfterRepo{StockRepository: f.repo, productID: 2, err: boom}

	err := f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 4}, {ProductID: 2, Quantity: 1}})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, shared.CategoryInfrastructure, shared.CategoryOf(err))
	assert.Equal(t, int64(10), f.quantity(t, 1))
}

func TestLedger_DeadlineBecomesReservationTimeout(t *testing.T) {
	f := newLedgerFixture(t, map[int64]int64{1: 10})
	held, err := f.lock.TryAcquire(context.Background(), stock.LockKeyFor(1), 0, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = f.lock.Release(context.Background(), held) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = f.ledger.Deduct(ctx, []Line{{ProductID: 1, Quantity: 1}})

	assert.ErrorIs(t, err, stock.ErrReservationTimeout)
	assert.Equal(t, int64(10), f.quantity(t, 1))
}

func TestLedger_Set(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, map[int64]int64{1: 10})

	stored, err := f.ledger.Set(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.Quantity().Value())
	assert.Equal(t, int64(1), stored.Version())

	_, err = f.ledger.Set(ctx, 1, -1)
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)

	_, err = f.ledger.Set(ctx, 7, 1)
	assert.ErrorIs(t, err, stock.ErrStockNotFound)
}

// Concurrent deductions never oversell: with Q units and more demand than
// Q, exactly the successful requests' units leave the store.
func TestLedger_ConcurrentDeductionsNeverOversell(t *testing.T) {
	ctx := context.Background()
	const initial = 20
	f := newLedgerFixture(t, map[int64]int64{1: initial, 2: initial})
	f.ledger.cfg.LockWait = 5 * time.Second

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		qty := int64(rand.Intn(3) + 1)
		// alternate product order to exercise lock ordering
		lines := []Line{{ProductID: 1, Quantity: qty}, {ProductID: 2, Quantity: qty}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		go func() {
			defer wg.Done()
			err := f.ledger.Deduct(ctx, lines)
			if err == nil {
				succeeded.Add(qty)
				return
			}
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, initial-succeeded.Load(), f.quantity(t, 1))
	assert.Equal(t, initial-succeeded.Load(), f.quantity(t, 2))
	assert.GreaterOrEqual(t, f.quantity(t, 1), int64(0))
}
