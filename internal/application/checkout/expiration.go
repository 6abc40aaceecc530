package checkout

import (
	"context"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// abandonedReason is the failure reason of a checkout whose reservation
// never finished
const abandonedReason = "RESERVATION_ABANDONED"

// ExpireCheckouts cancels RESERVED checkouts whose window has passed and
// gives their stock back. It then fails PENDING checkouts older than any
// live reservation can run and releases the stock they may hold. Both
// passes work in batches until a batch comes back short or makes no
// progress. Each candidate is re-read under its lock, so a checkout settled
// in the meantime is skipped.
func (s *Service) ExpireCheckouts(ctx context.Context) (*ExpirationStats, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "expire")
	defer span.End()

	now := s.clock.Now()
	stats := &ExpirationStats{ProcessedAt: now}
	log := logger.ForContext(ctx, s.logger)

	err := s.sweep(ctx, stats, &stats.Cancelled,
		func(ctx context.Context) ([]*checkout.Checkout, error) {
			return s.repo.FindExpiredReserved(ctx, now, s.cfg.SweepBatchSize)
		},
		func(ctx context.Context, c *checkout.Checkout) (bool, error) {
			return s.expireOne(ctx, c, now)
		},
	)
	if err == nil {
		staleBefore := now.Add(-s.pendingGrace())
		err = s.sweep(ctx, stats, &stats.Abandoned,
			func(ctx context.Context) ([]*checkout.Checkout, error) {
				return s.repo.FindStalePending(ctx, staleBefore, s.cfg.SweepBatchSize)
			},
			s.releaseAbandoned,
		)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return stats, err
	}

	s.metrics.RecordExpired(ctx, stats.Cancelled)
	if stats.Total > 0 {
		log.Info("expired checkouts swept",
			zap.Int("total", stats.Total),
			zap.Int("cancelled", stats.Cancelled),
			zap.Int("abandoned", stats.Abandoned),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

// sweep settles batches returned by fetch until a batch is short or
// settles nothing. settled counts the candidates settle handled.
func (s *Service) sweep(
	ctx context.Context,
	stats *ExpirationStats,
	settled *int,
	fetch func(ctx context.Context) ([]*checkout.Checkout, error),
	settle func(ctx context.Context, c *checkout.Checkout) (bool, error),
) error {
	log := logger.ForContext(ctx, s.logger)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := fetch(ctx)
		if err != nil {
			return err
		}

		done := 0
		for _, candidate := range batch {
			stats.Total++
			ok, err := settle(ctx, candidate)
			switch {
			case err != nil:
				stats.Failed++
				log.Warn("failed to settle stale checkout",
					zap.String("checkout_id", candidate.ID.String()),
					zap.String("status", candidate.Status.String()),
					zap.Error(err))
			case ok:
				done++
			default:
				stats.Skipped++
			}
		}
		*settled += done

		if len(batch) < s.cfg.SweepBatchSize || done == 0 {
			return nil
		}
	}
}

// pendingGrace is the longest a live reservation can keep its checkout
// PENDING: the reservation deadline, the lock lease a stalled holder may
// still own, and the detached status write.
func (s *Service) pendingGrace() time.Duration {
	return s.cfg.ReservationDeadline + s.cfg.LockLease + detachedTimeout
}

// releaseAbandoned reports whether the PENDING checkout was failed and its
// stock released
func (s *Service) releaseAbandoned(ctx context.Context, candidate *checkout.Checkout) (bool, error) {
	released := false
	err := s.withCheckoutLock(ctx, candidate.ID, func(ctx context.Context) error {
		c, err := s.repo.FindByID(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if c.Status != checkout.StatusPending {
			return nil
		}
		if err := s.release(ctx, c, abandonedReason); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// expireOne reports whether the checkout was cancelled
func (s *Service) expireOne(ctx context.Context, candidate *checkout.Checkout, now time.Time) (bool, error) {
	cancelled := false
	err := s.withCheckoutLock(ctx, candidate.ID, func(ctx context.Context) error {
		c, err := s.repo.FindByID(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if !c.IsExpired(now) {
			return nil
		}
		if err := s.cancelLocked(ctx, c, checkout.CancelReasonExpired); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}
