package stock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// RetryPolicy bounds how contention errors are retried
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts between 50ms and 1s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.RandomizationFactor = 1.0
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Run calls op until it succeeds, fails with a non-contention error, or the
// attempts are spent. onRetry sees every error that will be retried.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error, onRetry func(err error, attempt int)) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil || shared.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(err, attempt)
		}
	})
}
