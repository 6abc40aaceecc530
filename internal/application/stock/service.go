package stock

import (
	"context"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Service is the stock administration and availability use case
type Service struct {
	repo    stock.Repository
	ledger  *Ledger
	counter stock.AvailabilityCache
	clock   shared.Clock
	logger  *zap.Logger
}

// NewService creates a stock service. counter may be nil.
func NewService(repo stock.Repository, ledger *Ledger, counter stock.AvailabilityCache, clock shared.Clock, log *zap.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		counter: counter,
		clock:   clock,
		logger:  log.Named("stock_service"),
	}
}

// CreateStock stocks a product for the first time
func (s *Service) CreateStock(ctx context.Context, productID, initial int64) (*StockResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock", "create")
	defer span.End()

	fresh, err := stock.New(productID, initial, s.clock.Now())
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, fresh)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.refill(ctx, created)

	logger.ForContext(ctx, s.logger).Info("product stocked",
		zap.Int64("product_id", productID),
		zap.Int64("quantity", initial),
	)
	return ToStockResponse(created), nil
}

// SetStockQuantity overwrites the on-hand quantity through the ledger
func (s *Service) SetStockQuantity(ctx context.Context, productID, quantity int64) (*StockResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock", "set_quantity")
	defer span.End()

	stored, err := s.ledger.Set(ctx, productID, quantity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.ForContext(ctx, s.logger).Info("stock quantity corrected",
		zap.Int64("product_id", productID),
		zap.Int64("quantity", quantity),
		zap.Int64("version", stored.Version()),
	)
	return ToStockResponse(stored), nil
}

// GetStock reads the authoritative row
func (s *Service) GetStock(ctx context.Context, productID int64) (*StockResponse, error) {
	current, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return ToStockResponse(current), nil
}

// GetAvailability answers from the counter and falls back to the store on
// a miss or a counter failure
func (s *Service) GetAvailability(ctx context.Context, productID int64) (*AvailabilityResponse, error) {
	if s.counter != nil {
		qty, found, err := s.counter.Get(ctx, productID)
		if err != nil {
			logger.ForContext(ctx, s.logger).Warn("stock counter unavailable, reading store",
				zap.Int64("product_id", productID), zap.Error(err))
		} else if found {
			return newAvailability(productID, qty, SourceCounter), nil
		}
	}

	current, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.refill(ctx, current)
	return newAvailability(productID, current.Quantity().Value(), SourceStore), nil
}

// refill caches a store read taken without the product lock. A committed
// mutation may have written a newer value in between, so only a miss is
// filled.
func (s *Service) refill(ctx context.Context, st stock.Stock) {
	if s.counter == nil {
		return
	}
	if _, err := s.counter.Fill(ctx, st.ProductID(), st.Quantity().Value()); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to refill stock counter",
			zap.Int64("product_id", st.ProductID()), zap.Error(err))
	}
}
