package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"exchange-ledger/config"
	httpHandler "exchange-ledger/internal/adapter/http/handler"
	"exchange-ledger/internal/adapter/pricefeed"
	pgStorage "exchange-ledger/internal/adapter/storage/postgres"
	redisStorage "exchange-ledger/internal/adapter/storage/redis"
	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/internal/service"
	"exchange-ledger/pkg/breaker"
	"exchange-ledger/pkg/logger"
	"exchange-ledger/pkg/retry"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Exchange Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize cache layer and rate limit store
	cache := redisStorage.NewCacheLayer(rdb, cfg.Cache, logger.Component(log, "cache"))
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize price feed: websocket stream with HTTP polling fallback
	poller := pricefeed.NewPoller(cfg.PriceFeed.PollURL, cfg.PriceFeed.FetchTimeout)

	levelSize, err := decimal.NewFromString(cfg.PriceFeed.LevelSize)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.PriceFeed.LevelSize).Msg("Invalid pricefeed.level_size")
	}
	oracleSvc := service.NewOracleService(
		cache,
		poller,
		breaker.New(cfg.PriceFeed.BreakerThreshold, cfg.PriceFeed.BreakerCooldown),
		service.OracleOptions{
			Assets:    cfg.PriceFeed.Assets,
			Freshness: cfg.PriceFeed.Freshness,
			CacheTTL:  cfg.Cache.DefaultTTL,
			FetchRetry: retry.Policy{
				MaxAttempts: cfg.PriceFeed.FetchAttempts,
				BaseDelay:   100 * time.Millisecond,
				MaxDelay:    time.Second,
				Jitter:      0.2,
			},
			DepthLevels:    cfg.PriceFeed.DepthLevels,
			LevelSize:      levelSize,
			LevelSpreadBps: int64(cfg.PriceFeed.LevelSpreadBps),
		},
		logger.Component(log, "oracle"),
	)

	stream := pricefeed.NewStreamClient(
		cfg.PriceFeed.StreamURL,
		cfg.PriceFeed.Assets,
		cfg.PriceFeed.ReconnectBackoff,
		cfg.PriceFeed.PollInterval,
		poller,
		func(sample domain.PriceSample) { oracleSvc.Apply(ctx, sample) },
		logger.Component(log, "pricefeed"),
	)
	go stream.Run(ctx)

	// Initialize business services
	recorderSvc := service.NewRecorderService(txRepo, transactor, logger.Component(log, "recorder"))
	ledgerSvc := service.NewLedgerService(
		walletRepo,
		recorderSvc,
		transactor,
		cache,
		service.LedgerOptions{
			SupportedAssets: cfg.Ledger.SupportedAssets,
			WalletCacheTTL:  cfg.Cache.DefaultTTL,
			WriteRetry: retry.Policy{
				MaxAttempts: cfg.Ledger.MaxAttempts,
				BaseDelay:   cfg.Ledger.RetryBaseDelay,
				MaxDelay:    cfg.Ledger.RetryMaxDelay,
				Jitter:      0.2,
			},
		},
		logger.Component(log, "ledger"),
	)

	quoteOpts, err := buildQuoteOptions(cfg.Quote, cfg.Ledger.SupportedAssets)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid quote configuration")
	}
	quoteSvc := service.NewQuoteService(
		oracleSvc,
		ledgerSvc,
		cache,
		breaker.New(cfg.Quote.BreakerThreshold, cfg.Quote.BreakerCooldown),
		quoteOpts,
		logger.Component(log, "quotes"),
	)
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		Quotes:         quoteSvc,
		Oracle:         oracleSvc,
		Recorder:       recorderSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSink:      auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM; the same signal also stops the
	// price feed stream via ctx.
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// buildQuoteOptions parses the decimal-string quote settings loaded by viper.
func buildQuoteOptions(cfg config.QuoteConfig, assets []string) (service.QuoteOptions, error) {
	minNotional, err := decimal.NewFromString(cfg.MinNotionalUSD)
	if err != nil {
		return service.QuoteOptions{}, fmt.Errorf("min_notional_usd %q: %w", cfg.MinNotionalUSD, err)
	}
	drift, err := decimal.NewFromString(cfg.RateDriftTolerance)
	if err != nil {
		return service.QuoteOptions{}, fmt.Errorf("rate_drift_tolerance %q: %w", cfg.RateDriftTolerance, err)
	}
	tiers := make([]service.FeeTier, 0, len(cfg.FeeTiers))
	for i, t := range cfg.FeeTiers {
		ceiling, err := decimal.NewFromString(t.NotionalCeilingUSD)
		if err != nil {
			return service.QuoteOptions{}, fmt.Errorf("fee_tiers[%d].notional_ceiling_usd %q: %w", i, t.NotionalCeilingUSD, err)
		}
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return service.QuoteOptions{}, fmt.Errorf("fee_tiers[%d].rate %q: %w", i, t.Rate, err)
		}
		tiers = append(tiers, service.FeeTier{CeilingUSD: ceiling, Rate: rate})
	}
	return service.QuoteOptions{
		SupportedAssets: assets,
		TTL:             cfg.TTL,
		MinNotionalUSD:  minNotional,
		DriftTolerance:  drift,
		FeeTiers:        tiers,
	}, nil
}
