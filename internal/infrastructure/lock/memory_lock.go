package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// InMemoryLock is a process-local DistributedLock with lease expiry. It
// backs single-instance runs and tests.
type InMemoryLock struct {
	mu      sync.Mutex
	held    map[shared.LockKey]lease
	changed chan struct{}
}

// NewInMemoryLock creates an empty lock table
func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{
		held:    make(map[shared.LockKey]lease),
		changed: make(chan struct{}),
	}
}

// TryAcquire waits for key to be free or its holder's lease to lapse
func (l *InMemoryLock) TryAcquire(ctx context.Context, key shared.LockKey, wait, leaseFor time.Duration) (shared.LockToken, error) {
	deadline := time.Now().Add(wait)

	for {
		l.mu.Lock()
		now := time.Now()
		cur, busy := l.held[key]
		if !busy || !now.Before(cur.expiresAt) {
			token := shared.LockToken{Key: key, Value: uuid.NewString()}
			l.held[key] = lease{token: token.Value, expiresAt: now.Add(leaseFor)}
			l.mu.Unlock()
			return token, nil
		}
		changed := l.changed
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return shared.LockToken{}, shared.ErrLockAcquisitionFailed.WithMessage(
				fmt.Sprintf("lock %s not acquired within %s", key, wait))
		}
		// wake on release, lease lapse or our own deadline
		timer := time.NewTimer(min(remaining, time.Until(cur.expiresAt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return shared.LockToken{}, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Release frees key if token still owns an unexpired lease
func (l *InMemoryLock) Release(ctx context.Context, token shared.LockToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.held[token.Key]
	if !ok || cur.token != token.Value {
		return shared.ErrLockNotHeld
	}
	delete(l.held, token.Key)
	close(l.changed)
	l.changed = make(chan struct{})
	if !time.Now().Before(cur.expiresAt) {
		return shared.ErrLockNotHeld
	}
	return nil
}

var _ shared.DistributedLock = (*InMemoryLock)(nil)
