// Package stock runs every stock mutation through the same locked,
// version-checked pipeline.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// releaseTimeout bounds lock release and compensation once the caller's
// context is gone
const releaseTimeout = 5 * time.Second

// Line is the quantity of one product taken or given back
type Line struct {
	ProductID int64
	Quantity  int64
}

// LedgerConfig holds lock and retry settings
type LedgerConfig struct {
	LockWait  time.Duration
	LockLease time.Duration
	Retry     RetryPolicy
}

// Ledger applies stock mutations. For each attempt it locks every touched
// product in ascending id order, reloads, mutates and compare-and-swaps
// each row, and undoes the rows already written if a later one fails. The
// version check is always performed, lock or not.
type Ledger struct {
	repo    stock.Repository
	lock    shared.DistributedLock
	counter stock.AvailabilityCache
	clock   shared.Clock
	cfg     LedgerConfig
	metrics *telemetry.CheckoutMetrics
	logger  *zap.Logger
}

// NewLedger creates a Ledger. counter may be nil.
func NewLedger(
	repo stock.Repository,
	lock shared.DistributedLock,
	counter stock.AvailabilityCache,
	clock shared.Clock,
	cfg LedgerConfig,
	log *zap.Logger,
) *Ledger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		repo:    repo,
		lock:    lock,
		counter: counter,
		clock:   clock,
		cfg:     cfg,
		logger:  log.Named("stock_ledger"),
	}
}

// SetMetrics enables metric recording
func (l *Ledger) SetMetrics(m *telemetry.CheckoutMetrics) {
	l.metrics = m
}

// mutation computes the next value of one row; undo reverses it
type mutation struct {
	name  string
	apply func(s stock.Stock, qty int64, now time.Time) (stock.Stock, error)
	undo  func(s stock.Stock, qty int64, now time.Time) (stock.Stock, error)
}

var (
	deduct = mutation{
		name:  "deduct",
		apply: stock.Stock.Deduct,
		undo:  stock.Stock.Restore,
	}
	restore = mutation{
		name:  "restore",
		apply: stock.Stock.Restore,
		undo:  stock.Stock.Deduct,
	}
)

// Deduct takes every line or nothing. InsufficientStock is returned as
// soon as one product falls short; rows already deducted in the attempt
// are restored first.
func (l *Ledger) Deduct(ctx context.Context, lines []Line) error {
	return l.run(ctx, deduct, lines)
}

// Restore gives every line back, all or nothing
func (l *Ledger) Restore(ctx context.Context, lines []Line) error {
	return l.run(ctx, restore, lines)
}

// Set overwrites the quantity of one product (admin correction)
func (l *Ledger) Set(ctx context.Context, productID, quantity int64) (stock.Stock, error) {
	if _, err := stock.NewQuantity(quantity); err != nil {
		return stock.Stock{}, err
	}
	ctx, span := telemetry.StartSpan(ctx, "stock.set",
		attribute.Int64(telemetry.SpanAttrProductID, productID),
		attribute.Int64(telemetry.SpanAttrQuantity, quantity),
	)
	defer span.End()

	var stored stock.Stock
	err := l.cfg.Retry.Run(ctx, func(ctx context.Context) error {
		tokens, err := l.acquire(ctx, []int64{productID})
		if err != nil {
			return err
		}
		defer l.release(ctx, tokens)

		current, err := l.repo.FindByProductID(ctx, productID)
		if err != nil {
			return err
		}
		next, err := current.SetQuantity(quantity, l.clock.Now())
		if err != nil {
			return err
		}
		stored, err = l.swap(ctx, current, next)
		return err
	}, l.onRetry(ctx, "set"))
	if err != nil {
		telemetry.RecordError(span, err)
		return stock.Stock{}, translateDeadline(err)
	}
	return stored, nil
}

func (l *Ledger) run(ctx context.Context, m mutation, lines []Line) error {
	merged, err := normalize(lines)
	if err != nil {
		return err
	}
	ctx, span := telemetry.StartSpan(ctx, "stock."+m.name,
		attribute.Int(telemetry.SpanAttrProductCount, len(merged)),
	)
	defer span.End()

	err = l.cfg.Retry.Run(ctx, func(ctx context.Context) error {
		return l.attempt(ctx, m, merged)
	}, l.onRetry(ctx, m.name))
	if err != nil {
		telemetry.RecordError(span, err)
		return translateDeadline(err)
	}
	return nil
}

// attempt is one locked pass over all lines
func (l *Ledger) attempt(ctx context.Context, m mutation, lines []Line) error {
	productIDs := make([]int64, len(lines))
	for i, line := range lines {
		productIDs[i] = line.ProductID
	}
	tokens, err := l.acquire(ctx, productIDs)
	if err != nil {
		return err
	}
	defer l.release(ctx, tokens)

	written := make([]stock.Stock, 0, len(lines))
	for i, line := range lines {
		current, err := l.repo.FindByProductID(ctx, line.ProductID)
		if err == nil {
			var next stock.Stock
			if next, err = m.apply(current, line.Quantity, l.clock.Now()); err == nil {
				var stored stock.Stock
				if stored, err = l.swap(ctx, current, next); err == nil {
					written = append(written, stored)
					continue
				}
			}
		}

		if cerr := l.compensate(ctx, m, lines[:i], written); cerr != nil {
			// cerr first: an infrastructure category stops the retry loop
			return errors.Join(cerr, err)
		}
		return err
	}
	return nil
}

// compensate reverses the rows written in this attempt. Locks are still
// held, so the reversal cannot conflict with other writers.
func (l *Ledger) compensate(ctx context.Context, m mutation, lines []Line, written []stock.Stock) error {
	if len(written) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	l.metrics.RecordCompensation(ctx, len(written))
	log := logger.ForContext(ctx, l.logger)

	var errs []error
	for i, current := range written {
		next, err := m.undo(current, lines[i].Quantity, l.clock.Now())
		if err == nil {
			_, err = l.swap(ctx, current, next)
		}
		if err != nil {
			log.Error("stock compensation failed",
				zap.String("operation", m.name),
				zap.Int64("product_id", lines[i].ProductID),
				zap.Int64("quantity", lines[i].Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("undo %s of product %d: %w", m.name, lines[i].ProductID, err))
		}
	}
	if len(errs) > 0 {
		return shared.NewCategorizedError(shared.CategoryInfrastructure, "STOCK_COMPENSATION_FAILED",
			errors.Join(errs...).Error())
	}
	return nil
}

// swap persists next against the version current was loaded with and
// refreshes the availability hint
func (l *Ledger) swap(ctx context.Context, current, next stock.Stock) (stock.Stock, error) {
	stored, err := l.repo.CompareAndSwap(ctx, next, current.Version())
	if err != nil {
		return stock.Stock{}, err
	}
	if l.counter != nil {
		if err := l.counter.Set(ctx, stored.ProductID(), stored.Quantity().Value()); err != nil {
			logger.ForContext(ctx, l.logger).Warn("failed to refresh stock counter",
				zap.Int64("product_id", stored.ProductID()), zap.Error(err))
		}
	}
	return stored, nil
}

// acquire locks productIDs, which must be sorted ascending. On failure the
// locks taken so far are released.
func (l *Ledger) acquire(ctx context.Context, productIDs []int64) ([]shared.LockToken, error) {
	start := time.Now()
	tokens := make([]shared.LockToken, 0, len(productIDs))
	for _, id := range productIDs {
		token, err := l.lock.TryAcquire(ctx, stock.LockKeyFor(id), l.cfg.LockWait, l.cfg.LockLease)
		if err != nil {
			l.metrics.RecordLockWait(ctx, time.Since(start), false)
			l.release(ctx, tokens)
			return nil, err
		}
		tokens = append(tokens, token)
	}
	l.metrics.RecordLockWait(ctx, time.Since(start), true)
	return tokens, nil
}

// release frees tokens in reverse order on a context detached from the
// caller, so a cancelled request still gives its locks back
func (l *Ledger) release(ctx context.Context, tokens []shared.LockToken) {
	if len(tokens) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for i := len(tokens) - 1; i >= 0; i-- {
		if err := l.lock.Release(rctx, tokens[i]); err != nil {
			// an expired lease means the CAS alone protected the write
			logger.ForContext(ctx, l.logger).Warn("failed to release stock lock",
				zap.String("lock_key", tokens[i].Key.String()),
				zap.Error(err),
			)
		}
	}
}

func (l *Ledger) onRetry(ctx context.Context, operation string) func(error, int) {
	return func(err error, attempt int) {
		reason := "unknown"
		var de *shared.DomainError
		if errors.As(err, &de) {
			reason = de.Code
		}
		l.metrics.RecordRetry(ctx, operation, reason)
		logger.ForContext(ctx, l.logger).Debug("retrying stock mutation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
		)
	}
}

// normalize merges lines per product, rejects non-positive quantities and
// sorts by product id so every caller locks in the same order
func normalize(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, stock.ErrInvalidQuantity.WithMessage("no stock lines given")
	}
	byProduct := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, stock.ErrInvalidProduct
		}
		if line.Quantity <= 0 {
			return nil, stock.ErrInvalidQuantity.WithMessage(
				fmt.Sprintf("quantity for product %d must be positive", line.ProductID))
		}
		if byProduct[line.ProductID] > stock.MaxQuantity-line.Quantity {
			return nil, stock.ErrStockOverflow
		}
		byProduct[line.ProductID] += line.Quantity
	}

	merged := make([]Line, 0, len(byProduct))
	for id, qty := range byProduct {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func translateDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", stock.ErrReservationTimeout, err)
	}
	return err
}
