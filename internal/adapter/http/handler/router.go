package handler

import (
	"exchange-ledger/internal/adapter/http/middleware"
	redisStore "exchange-ledger/internal/adapter/storage/redis"
	"exchange-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.BalanceLedger
	Quotes         ports.QuoteEngine
	Oracle         ports.PriceOracle
	Recorder       ports.TransactionRecorder
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSink      ports.AuditSink // nil = audit trail disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit trail (after response)
	if deps.AuditSink != nil {
		r.Use(middleware.AuditTrail(deps.AuditSink))
	}

	// Deep health check: PostgreSQL, Redis, and feed freshness.
	r.GET("/health", HealthCheck(deps.Oracle, deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	walletHandler := NewWalletHandler(deps.Ledger, deps.Recorder)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl("wallets_create"), walletHandler.Create)
		wallets.GET("/:id", rl("wallets_read"), walletHandler.Get)
		wallets.POST("/:id/deposit", rl("wallets_mutate"), walletHandler.Deposit)
		wallets.POST("/:id/withdraw", rl("wallets_mutate"), walletHandler.Withdraw)
		wallets.POST("/:id/transfer", rl("wallets_mutate"), walletHandler.Transfer)
		wallets.GET("/:id/transactions", rl("transactions"), walletHandler.Transactions)
	}
	v1.GET("/owners/:owner_id/wallets", rl("wallets_read"), walletHandler.List)

	exchangeHandler := NewExchangeHandler(deps.Quotes, deps.Oracle)
	v1.POST("/quotes", rl("quotes"), exchangeHandler.Quote)
	v1.POST("/exchanges", rl("exchanges"), exchangeHandler.Execute)
	v1.GET("/prices/:asset", rl("wallets_read"), exchangeHandler.Price)

	return r
}
