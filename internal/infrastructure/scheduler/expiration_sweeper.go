package scheduler

import (
	"context"
	"sync"
	"time"

	checkoutapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/checkout"
	"go.uber.org/zap"
)

// CheckoutExpirer releases reservations whose payment window has closed
type CheckoutExpirer interface {
	ExpireCheckouts(ctx context.Context) (*checkoutapp.ExpirationStats, error)
}

// ExpirationSweeperConfig holds configuration for the expiration sweeper
type ExpirationSweeperConfig struct {
	// Enabled determines if the sweeper is active
	Enabled bool

	// Interval between two sweeps
	Interval time.Duration

	// RunTimeout is the maximum time for one sweep
	RunTimeout time.Duration
}

// DefaultExpirationSweeperConfig returns default configuration
func DefaultExpirationSweeperConfig() ExpirationSweeperConfig {
	return ExpirationSweeperConfig{
		Enabled:    true,
		Interval:   time.Minute,
		RunTimeout: 5 * time.Minute,
	}
}

// Validate checks the configuration
func (c ExpirationSweeperConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ExpirationSweeper periodically cancels RESERVED checkouts past their
// expiry time. Sweeps never overlap.
type ExpirationSweeper struct {
	expirer CheckoutExpirer
	logger  *zap.Logger
	config  ExpirationSweeperConfig

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  sync.Mutex
}

// NewExpirationSweeper creates a new expiration sweeper
func NewExpirationSweeper(expirer CheckoutExpirer, logger *zap.Logger, config ExpirationSweeperConfig) *ExpirationSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultExpirationSweeperConfig().RunTimeout
	}
	return &ExpirationSweeper{
		expirer: expirer,
		logger:  logger.Named("expiration_sweeper"),
		config:  config,
	}
}

// Start starts the sweep loop
func (s *ExpirationSweeper) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Expiration sweeper is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx)

	s.logger.Info("Expiration sweeper started", zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep
func (s *ExpirationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Expiration sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Expiration sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the sweeper is running
func (s *ExpirationSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// TriggerImmediateSweep runs one sweep outside the schedule
func (s *ExpirationSweeper) TriggerImmediateSweep(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.sweep(ctx)
	}()
	return nil
}

func (s *ExpirationSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Expiration sweep loop stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one pass. A pass that finds the previous one still running is
// skipped rather than queued.
func (s *ExpirationSweeper) sweep(ctx context.Context) {
	if !s.sweeping.TryLock() {
		s.logger.Debug("Previous sweep still running, skipping")
		return
	}
	defer s.sweeping.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	stats, err := s.expirer.ExpireCheckouts(runCtx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("Expiration sweep failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	if stats.Total == 0 {
		return
	}
	s.logger.Info("Expiration sweep completed",
		zap.Duration("duration", duration),
		zap.Int("total", stats.Total),
		zap.Int("cancelled", stats.Cancelled),
		zap.Int("abandoned", stats.Abandoned),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
}
