package handler

import (
	"custody-vault/internal/adapter/http/middleware"
	redisStore "custody-vault/internal/adapter/storage/redis"
	"custody-vault/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxRequestBody = 64 << 10

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	VaultSvc       ports.VaultService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	Idempotency    ports.IdempotencyCache     // nil = Idempotency-Key ignored
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxRequestBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: pings every configured backend)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

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

	var idem gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.Idempotency != nil {
		idem = middleware.Idempotency(deps.Idempotency, deps.Logger)
	}

	// Every API route identifies its caller.
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	vaultHandler := NewVaultHandler(deps.VaultSvc)
	deposits := v1.Group("/deposits", rl("deposits"), idem)
	{
		deposits.POST("/native", vaultHandler.DepositNative)
		deposits.POST("/token", vaultHandler.DepositToken)
	}

	withdrawals := v1.Group("/withdrawals", rl("withdrawals"), idem)
	{
		withdrawals.POST("/native", vaultHandler.WithdrawNative)
		withdrawals.POST("/token", vaultHandler.WithdrawToken)
	}

	adminHandler := NewAdminHandler(deps.VaultSvc)
	admin := v1.Group("/admin", rl("admin"))
	{
		admin.PUT("/assets/:asset", adminHandler.ConfigureAsset)
	}

	queryHandler := NewQueryHandler(deps.VaultSvc)
	queries := v1.Group("", rl("queries"))
	{
		queries.GET("/balances/:asset", queryHandler.GetBalance)
		queries.GET("/preview/native", queryHandler.PreviewNative)
		queries.GET("/preview/token/:asset", queryHandler.PreviewToken)
		queries.GET("/assets/:asset", queryHandler.GetAsset)
		queries.GET("/totals", queryHandler.GetTotals)
		queries.GET("/events", queryHandler.ListEvents)
	}

	return r
}
