package shared

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LockKey is a deterministic lock name derived from a domain concern.
type LockKey string

// NewLockKey joins the parts of a lock name with ':' under the "lock" namespace.
func NewLockKey(parts ...string) LockKey {
	return LockKey("lock:" + strings.Join(parts, ":"))
}

// String returns the raw key
func (k LockKey) String() string {
	return string(k)
}

// LockToken proves ownership of an acquired lock. Only the holder of the
// token may release the lock.
type LockToken struct {
	Key   LockKey
	Value string
}

// String returns a loggable form of the token
func (t LockToken) String() string {
	return fmt.Sprintf("%s@%s", t.Key, t.Value)
}

// DistributedLock provides lease-based mutual exclusion across process
// instances.
type DistributedLock interface {
	// TryAcquire blocks for at most wait trying to obtain key. The returned
	// lease expires after lease even if never released. Returns
	// ErrLockAcquisitionFailed when wait elapses.
	TryAcquire(ctx context.Context, key LockKey, wait, lease time.Duration) (LockToken, error)
	// Release frees the lock if token still owns it. Releasing a lock whose
	// lease already expired returns ErrLockNotHeld.
	Release(ctx context.Context, token LockToken) error
}
