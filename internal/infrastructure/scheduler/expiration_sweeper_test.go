package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	checkoutapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/checkout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (e *countingExpirer) ExpireCheckouts(ctx context.Context) (*checkoutapp.ExpirationStats, error) {
	e.calls.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return &checkoutapp.ExpirationStats{Total: 1, Cancelled: 1, ProcessedAt: time.Now()}, nil
}

func TestExpirationSweeperConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultExpirationSweeperConfig().Validate())
	assert.ErrorIs(t, ExpirationSweeperConfig{Enabled: true}.Validate(), ErrInvalidConfig)
	assert.NoError(t, ExpirationSweeperConfig{Enabled: false}.Validate())
}

func TestExpirationSweeper_RunsOnInterval(t *testing.T) {
	expirer := &countingExpirer{}
	s := NewExpirationSweeper(expirer, zap.NewNop(), ExpirationSweeperConfig{
		Enabled:  true,
		Interval: 5 * time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())

	stopped := expirer.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, expirer.calls.Load())
}

func TestExpirationSweeper_Disabled(t *testing.T) {
	expirer := &countingExpirer{}
	s := NewExpirationSweeper(expirer, nil, ExpirationSweeperConfig{Enabled: false})

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.TriggerImmediateSweep(context.Background()), ErrSchedulerNotRunning)
	require.NoError(t, s.Stop(context.Background()))
}

func TestExpirationSweeper_SurvivesErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	s := NewExpirationSweeper(expirer, zap.NewNop(), ExpirationSweeperConfig{
		Enabled:  true,
		Interval: 5 * time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestExpirationSweeper_TriggerImmediate(t *testing.T) {
	expirer := &countingExpirer{}
	s := NewExpirationSweeper(expirer, zap.NewNop(), ExpirationSweeperConfig{
		Enabled:  true,
		Interval: time.Hour,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.TriggerImmediateSweep(context.Background()))
	assert.Eventually(t, func() bool { return expirer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestExpirationSweeper_SkipsOverlappingSweeps(t *testing.T) {
	expirer := &countingExpirer{block: make(chan struct{})}
	s := NewExpirationSweeper(expirer, zap.NewNop(), ExpirationSweeperConfig{
		Enabled:  true,
		Interval: time.Hour,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.TriggerImmediateSweep(context.Background()))
	assert.Eventually(t, func() bool { return expirer.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.TriggerImmediateSweep(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), expirer.calls.Load())

	close(expirer.block)
	require.NoError(t, s.Stop(context.Background()))
}
