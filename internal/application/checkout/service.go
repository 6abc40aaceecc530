// Package checkout drives the checkout lifecycle: idempotent creation with
// all-or-nothing stock reservation, payment completion, cancellation and
// the expiry sweep.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	stockapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared/valueobject"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// detachedTimeout bounds writes that must finish after the caller has gone
const detachedTimeout = 5 * time.Second

// StockReserver takes and gives back stock, all lines or none
type StockReserver interface {
	Deduct(ctx context.Context, lines []stockapp.Line) error
	Restore(ctx context.Context, lines []stockapp.Line) error
}

// Config holds checkout timing settings
type Config struct {
	ExpiryWindow        time.Duration
	ReservationDeadline time.Duration
	LockWait            time.Duration
	LockLease           time.Duration
	SweepBatchSize      int
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		ExpiryWindow:        30 * time.Minute,
		ReservationDeadline: 10 * time.Second,
		LockWait:            3 * time.Second,
		LockLease:           15 * time.Second,
		SweepBatchSize:      100,
	}
}

// Service is the checkout use case
type Service struct {
	repo      checkout.Repository
	stock     StockReserver
	lock      shared.DistributedLock
	clock     shared.Clock
	cfg       Config
	publisher shared.EventPublisher
	metrics   *telemetry.CheckoutMetrics
	logger    *zap.Logger
	newID     func() (uuid.UUID, error)
}

// NewService creates a checkout service
func NewService(
	repo checkout.Repository,
	reserver StockReserver,
	lock shared.DistributedLock,
	clock shared.Clock,
	cfg Config,
	log *zap.Logger,
) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SweepBatchSize < 1 {
		cfg.SweepBatchSize = DefaultConfig().SweepBatchSize
	}
	return &Service{
		repo:   repo,
		stock:  reserver,
		lock:   lock,
		clock:  clock,
		cfg:    cfg,
		logger: log.Named("checkout_service"),
		newID:  uuid.NewV7,
	}
}

// SetEventPublisher sets the publisher for checkout lifecycle events
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetMetrics enables metric recording
func (s *Service) SetMetrics(m *telemetry.CheckoutMetrics) {
	s.metrics = m
}

// CreateCheckout creates a checkout and reserves its stock.
//
// A replay of a known idempotency key returns the stored checkout without
// touching stock, or ErrDuplicateCheckout when the payload differs. When the
// reservation fails the checkout is returned in FAILED state together with
// the error.
func (s *Service) CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (*checkout.Checkout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "create")
	defer span.End()
	start := time.Now()

	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	if cmd.IdempotencyKey == "" {
		return nil, checkout.ErrInvalidIdempotencyKey
	}
	ctx = logger.WithIdempotencyKey(ctx, cmd.IdempotencyKey)
	span.SetAttributes(attribute.String(telemetry.SpanAttrIdempotencyKey, cmd.IdempotencyKey))

	items, err := cmd.toItems()
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
	switch {
	case err == nil:
		return s.replay(ctx, existing, cmd.MemberID, items, start)
	case !errors.Is(err, checkout.ErrCheckoutNotFound):
		telemetry.RecordError(span, err)
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	c, err := checkout.New(id, cmd.IdempotencyKey, cmd.MemberID, items, s.clock.Now(), s.cfg.ExpiryWindow)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, c); err != nil {
		if !errors.Is(err, checkout.ErrIdempotencyKeyExists) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		// a concurrent request with the same key won the insert
		winner, ferr := s.repo.FindByIdempotencyKey(ctx, c.IdempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		return s.replay(ctx, winner, cmd.MemberID, items, start)
	}
	span.SetAttributes(attribute.String(telemetry.SpanAttrCheckoutID, c.ID.String()))

	c, err = s.reserve(ctx, c)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordReservation(ctx, string(outcomeOf(err)), time.Since(start))
		return c, err
	}

	s.metrics.RecordReservation(ctx, string(OutcomeOK), time.Since(start))
	logger.ForContext(ctx, s.logger).Info("checkout reserved",
		zap.String("checkout_id", c.ID.String()),
		zap.String("member_id", c.MemberID),
		zap.Int("items", len(c.Items)),
		zap.String("total", c.TotalAmount().String()),
	)
	return c, nil
}

// reserve deducts stock for a freshly inserted PENDING checkout and moves
// it to RESERVED, or to FAILED with every deduction undone. It returns the
// checkout as last recorded.
func (s *Service) reserve(ctx context.Context, c *checkout.Checkout) (*checkout.Checkout, error) {
	rctx, cancel := s.withDeadline(ctx)
	err := s.stock.Deduct(rctx, linesOf(c))
	cancel()
	if err != nil {
		s.fail(ctx, c, err)
		return c, err
	}

	// stock is taken, the status write must land even if the caller left
	wctx, wcancel := detached(ctx)
	defer wcancel()

	if err := c.MarkReserved(s.clock.Now()); err != nil {
		if rerr := s.release(wctx, c, failureReason(err)); rerr != nil {
			logger.ForContext(ctx, s.logger).Error("failed to release stock of unreservable checkout",
				zap.String("checkout_id", c.ID.String()), zap.Error(rerr))
		}
		return c, err
	}
	if err := s.repo.Save(wctx, c); err != nil {
		return s.settleReservation(wctx, c, err)
	}
	s.publish(ctx, c)
	return c, nil
}

// settleReservation decides what a RESERVED write that reported cause left
// behind. The write may have committed before the error, so the stored row
// is the authority: RESERVED keeps the stock, PENDING gives it back, and
// anything else was settled by someone who now owns the stock.
func (s *Service) settleReservation(ctx context.Context, c *checkout.Checkout, cause error) (*checkout.Checkout, error) {
	log := logger.ForContext(ctx, s.logger).With(zap.String("checkout_id", c.ID.String()))

	stored, err := s.repo.FindByID(ctx, c.ID)
	if err != nil {
		// the expiry sweep settles the row once it can be read again
		log.Error("failed to reload checkout after reservation write error, stock stays held",
			zap.NamedError("write_error", cause), zap.Error(err))
		c.ClearDomainEvents()
		return c, cause
	}

	switch stored.Status {
	case checkout.StatusReserved:
		log.Warn("reservation write reported an error after landing", zap.Error(cause))
		c.Version = stored.Version
		s.publish(ctx, c)
		return c, nil
	case checkout.StatusPending:
		log.Error("failed to persist reservation, releasing stock", zap.Error(cause))
		if err := s.release(ctx, stored, failureReason(cause)); err != nil {
			log.Error("failed to release stock, left to the expiry sweep", zap.Error(err))
		}
		return stored, cause
	default:
		log.Warn("checkout settled elsewhere during reservation",
			zap.String("status", stored.Status.String()), zap.Error(cause))
		c.ClearDomainEvents()
		return stored, cause
	}
}

// fail records a reservation failure on a PENDING checkout whose stock was
// never taken or was already given back by the ledger
func (s *Service) fail(ctx context.Context, c *checkout.Checkout, cause error) {
	wctx, cancel := detached(ctx)
	defer cancel()

	log := logger.ForContext(ctx, s.logger)
	if err := c.MarkFailed(failureReason(cause), s.clock.Now()); err != nil {
		log.Error("failed to mark checkout failed", zap.String("checkout_id", c.ID.String()), zap.Error(err))
		return
	}
	// a row left PENDING is later treated as holding stock
	if err := s.saveWithRetry(wctx, c); err != nil {
		log.Error("failed to persist failed checkout", zap.String("checkout_id", c.ID.String()), zap.Error(err))
		return
	}
	log.Info("checkout failed",
		zap.String("checkout_id", c.ID.String()),
		zap.String("reason", c.FailureReason),
	)
	s.publish(ctx, c)
}

// release marks a PENDING checkout that holds stock FAILED and then gives
// the stock back. The status write goes first: whoever moves the row off
// PENDING owns its stock, so a late reservation write and the expiry sweep
// can never both settle it.
func (s *Service) release(ctx context.Context, c *checkout.Checkout, reason string) error {
	lines := linesOf(c)
	if err := c.MarkFailed(reason, s.clock.Now()); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		c.ClearDomainEvents()
		return err
	}

	rctx, cancel := s.withDeadline(ctx)
	err := s.stock.Restore(rctx, lines)
	cancel()
	if err != nil {
		logger.ForContext(ctx, s.logger).Error("stock drift: failed to restore stock of a failed checkout",
			zap.String("checkout_id", c.ID.String()), zap.Error(err))
		s.publish(ctx, c)
		return err
	}

	logger.ForContext(ctx, s.logger).Info("checkout failed, stock released",
		zap.String("checkout_id", c.ID.String()),
		zap.String("reason", reason),
	)
	s.publish(ctx, c)
	return nil
}

// saveWithRetry retries transient store errors. A version conflict means
// another writer already moved the row and is returned at once.
func (s *Service) saveWithRetry(ctx context.Context, c *checkout.Checkout) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, 2), ctx)

	return backoff.Retry(func() error {
		err := s.repo.Save(ctx, c)
		if errors.Is(err, checkout.ErrConcurrentModification) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (s *Service) replay(ctx context.Context, existing *checkout.Checkout, memberID string, items []checkout.Item, start time.Time) (*checkout.Checkout, error) {
	if !existing.SameRequest(memberID, items) {
		s.metrics.RecordReservation(ctx, string(OutcomeDuplicate), time.Since(start))
		return nil, checkout.ErrDuplicateCheckout
	}
	s.metrics.RecordReservation(ctx, "replayed", time.Since(start))
	logger.ForContext(ctx, s.logger).Debug("idempotent replay",
		zap.String("checkout_id", existing.ID.String()),
		zap.String("status", existing.Status.String()),
	)
	return existing, nil
}

// CompleteCheckout confirms payment of a RESERVED checkout. Stock is not
// touched. Repeating the call with the same payment id returns the
// completed checkout unchanged.
func (s *Service) CompleteCheckout(ctx context.Context, cmd CompleteCheckoutCommand) (*checkout.Checkout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "complete")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.SpanAttrCheckoutID, cmd.CheckoutID.String()))

	var result *checkout.Checkout
	err := s.withCheckoutLock(ctx, cmd.CheckoutID, func(ctx context.Context) error {
		c, err := s.repo.FindByID(ctx, cmd.CheckoutID)
		if err != nil {
			return err
		}
		if c.IsCompletedBy(cmd.PaymentID) {
			result = c
			return nil
		}

		payment := checkout.PaymentConfirmation{
			PaymentID:       cmd.PaymentID,
			PGTransactionID: cmd.PGTransactionID,
		}
		if cmd.PaidAmount != nil {
			paid, err := valueobject.NewMoney(*cmd.PaidAmount, c.TotalAmount().Currency())
			if err != nil {
				return checkout.ErrPaymentMismatch.WithMessage(err.Error())
			}
			payment.PaidAmount = &paid
		}
		if err := c.Complete(payment, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
		s.publish(ctx, c)
		result = c
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.ForContext(ctx, s.logger).Info("checkout completed",
		zap.String("checkout_id", result.ID.String()),
		zap.String("payment_id", result.PaymentID),
	)
	return result, nil
}

// CancelCheckout restores the stock of a RESERVED checkout and cancels it.
// Cancelling an already cancelled checkout returns it unchanged.
func (s *Service) CancelCheckout(ctx context.Context, checkoutID uuid.UUID, reason checkout.CancelReason) (*checkout.Checkout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "cancel")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.SpanAttrCheckoutID, checkoutID.String()))

	var result *checkout.Checkout
	err := s.withCheckoutLock(ctx, checkoutID, func(ctx context.Context) error {
		c, err := s.repo.FindByID(ctx, checkoutID)
		if err != nil {
			return err
		}
		if c.Status == checkout.StatusCancelled {
			result = c
			return nil
		}
		if err := s.cancelLocked(ctx, c, reason); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// cancelLocked restores stock and then flips the status. The caller holds
// the checkout lock. If the status cannot be written the stock is taken
// again so the reservation stays consistent with the record.
func (s *Service) cancelLocked(ctx context.Context, c *checkout.Checkout, reason checkout.CancelReason) error {
	if !c.Status.CanTransitionTo(checkout.StatusCancelled) {
		return checkout.ErrInvalidCheckoutStatus.WithMessage(
			"checkout " + c.ID.String() + " cannot be cancelled in status " + c.Status.String())
	}
	lines := linesOf(c)

	rctx, cancel := s.withDeadline(ctx)
	err := s.stock.Restore(rctx, lines)
	cancel()
	if err != nil {
		return err
	}

	wctx, wcancel := detached(ctx)
	defer wcancel()

	if err := c.Cancel(reason, s.clock.Now()); err != nil {
		return err
	}
	if err := s.repo.Save(wctx, c); err != nil {
		log := logger.ForContext(ctx, s.logger)
		log.Error("failed to persist cancellation, taking stock back",
			zap.String("checkout_id", c.ID.String()), zap.Error(err))
		if derr := s.stock.Deduct(wctx, lines); derr != nil {
			log.Error("stock drift: restored stock of a checkout still recorded as reserved",
				zap.String("checkout_id", c.ID.String()), zap.Error(derr))
		}
		return err
	}
	s.publish(ctx, c)

	logger.ForContext(ctx, s.logger).Info("checkout cancelled",
		zap.String("checkout_id", c.ID.String()),
		zap.String("reason", string(reason)),
	)
	return nil
}

// GetCheckout returns a checkout by id
func (s *Service) GetCheckout(ctx context.Context, checkoutID uuid.UUID) (*checkout.Checkout, error) {
	return s.repo.FindByID(ctx, checkoutID)
}

// withCheckoutLock serializes completion, cancellation and expiry of one
// checkout. It is always taken before any stock lock.
func (s *Service) withCheckoutLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	token, err := s.lock.TryAcquire(ctx, checkout.LockKeyFor(id), s.cfg.LockWait, s.cfg.LockLease)
	if err != nil {
		return err
	}
	defer func() {
		rctx, cancel := detached(ctx)
		defer cancel()
		if err := s.lock.Release(rctx, token); err != nil {
			logger.ForContext(ctx, s.logger).Warn("failed to release checkout lock",
				zap.String("lock_key", token.Key.String()), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ReservationDeadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ReservationDeadline)
}

// publish hands recorded events to the bus. Delivery failures are logged
// and never fail the operation that raised them.
func (s *Service) publish(ctx context.Context, c *checkout.Checkout) {
	events := c.GetDomainEvents()
	c.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to publish checkout events",
			zap.String("checkout_id", c.ID.String()), zap.Error(err))
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
}

func linesOf(c *checkout.Checkout) []stockapp.Line {
	reqs := c.StockRequirements()
	lines := make([]stockapp.Line, len(reqs))
	for i, r := range reqs {
		lines[i] = stockapp.Line{ProductID: r.ProductID, Quantity: r.Quantity}
	}
	return lines
}

// failureReason keeps the stable code of a domain error
func failureReason(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "CANCELLED_BY_CALLER"
	}
	return "INFRASTRUCTURE_ERROR"
}
