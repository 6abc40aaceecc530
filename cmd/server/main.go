// Command server runs the checkout and stock HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	checkoutapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/checkout"
	stockapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/cache"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/config"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/event"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/lock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/persistence"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/scheduler"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/telemetry"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/handler"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.ISOTimeFormat,
		Service:    cfg.App.Name,
		Env:        cfg.App.Env,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	log := logProvider.Bridge(baseLog, zapcore.InfoLevel)

	log.Info("Starting checkout service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbSystem := "postgresql"
	if cfg.Database.Driver == "sqlite" {
		dbSystem = "sqlite"
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:   dbSystem,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		return err
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	redisClient, distLock, counter, err := newCoordination(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	checkoutMetrics, err := telemetry.NewCheckoutMetrics(meterProvider.Meter("setof-commerce/checkout"))
	if err != nil {
		return fmt.Errorf("register checkout metrics: %w", err)
	}

	stockRepo := persistence.NewGormStockRepository(db.DB)
	checkoutRepo := persistence.NewGormCheckoutRepository(db.DB)

	ledger := stockapp.NewLedger(stockRepo, distLock, counter, nil, stockapp.LedgerConfig{
		LockWait:  cfg.Lock.WaitTimeout,
		LockLease: cfg.Lock.LeaseTimeout,
		Retry: stockapp.RetryPolicy{
			MaxAttempts: cfg.Reservation.MaxAttempts,
			BaseDelay:   cfg.Reservation.BackoffBase,
			MaxDelay:    cfg.Reservation.BackoffMax,
		},
	}, log)
	ledger.SetMetrics(checkoutMetrics)
	stockService := stockapp.NewService(stockRepo, ledger, counter, nil, log)

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	if err := eventBus.Start(ctx); err != nil {
		return err
	}

	checkoutService := checkoutapp.NewService(checkoutRepo, ledger, distLock, nil, checkoutapp.Config{
		ExpiryWindow:        cfg.Checkout.ExpiryWindow,
		ReservationDeadline: cfg.Reservation.Deadline,
		LockWait:            cfg.Lock.WaitTimeout,
		LockLease:           cfg.Lock.LeaseTimeout,
		SweepBatchSize:      cfg.Sweeper.BatchSize,
	}, log)
	checkoutService.SetEventPublisher(eventBus)
	checkoutService.SetMetrics(checkoutMetrics)

	sweeper := scheduler.NewExpirationSweeper(checkoutService, log, scheduler.ExpirationSweeperConfig{
		Enabled:  cfg.Sweeper.Enabled,
		Interval: cfg.Sweeper.Interval,
	})
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start expiration sweeper: %w", err)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          meterProvider.Meter("setof-commerce/http"),
	}, log)
	if err != nil {
		return fmt.Errorf("build http engine: %w", err)
	}

	system := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", handler.PingFunc(func(context.Context) error { return db.Ping() }))
	if redisClient != nil {
		system.AddCheck("redis", handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	system.RegisterRoutes(engine)

	router.NewRouter(engine).
		Register(handler.NewCheckoutHandler(checkoutService, log)).
		Register(handler.NewStockHandler(stockService, log)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// stop intake first, then the sweeper, then drain events
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Expiration sweeper shutdown failed", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus shutdown failed", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			baseLog.Error("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server stopped")
	return nil
}

// newCoordination connects the Redis lock and availability counter. Outside
// production an unreachable Redis falls back to process-local versions, which
// are only correct for a single instance.
func newCoordination(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, shared.DistributedLock, stock.AvailabilityCache, error) {
	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err == nil {
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		return client,
			lock.NewRedisLock(client, lock.WithKeyPrefix(cfg.Lock.KeyPrefix)),
			cache.NewRedisStockCounter(client, "", 0),
			nil
	}
	if cfg.App.Env == "production" {
		return nil, nil, nil, err
	}
	log.Warn("Redis unavailable, using in-process lock and counter", zap.Error(err))
	return nil, lock.NewInMemoryLock(), cache.NewInMemoryStockCounter(), nil
}
