package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	loginRate   = 5
	loginWindow = 5 * time.Minute
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	Admin   *handler.AdminHandler
	System  *handler.SystemHandler
	Health  *handler.HealthHandler
}

// Deps are the shared pieces the middleware chain needs.
type Deps struct {
	Auth *service.AuthService
	// Redis backs the shared rate limit counters. Nil disables them.
	Redis *redis.Client
	// CreateLimiter throttles session creation per IP in memory.
	CreateLimiter *middleware.RateLimiter
	Log           zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(metrics.Middleware())

	brotliCfg := middleware.DefaultBrotliConfig
	brotliCfg.SkipPaths = append(brotliCfg.SkipPaths, "/api/v1/admin/monitor", "/api/v1/admin/system")
	router.Use(middleware.BrotliWithConfig(brotliCfg))

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", metrics.Handler())

	var startLimit, loginLimit gin.HandlerFunc = passThrough, passThrough
	if deps.Redis != nil {
		startLimit = middleware.RedisRateLimit(deps.Redis, cfg.StartRateLimit, cfg.StartRateWindow,
			config.CacheKey.StartAttemptsKey, deps.Log)
		loginLimit = middleware.RedisRateLimit(deps.Redis, loginRate, loginWindow,
			config.CacheKey.AdminLoginAttemptsKey, deps.Log)
	}
	var createLimit gin.HandlerFunc = passThrough
	if deps.CreateLimiter != nil {
		createLimit = deps.CreateLimiter.Middleware()
	}

	// ─── 1. Session Group (Public create, then session JWT) ────────────
	api := router.Group("/api/v1")
	api.POST("/sessions", createLimit, handlers.Session.Create)

	sessions := api.Group("/sessions/:id")
	sessions.Use(middleware.RequireSessionJWT(deps.Auth))
	{
		sessions.GET("", handlers.Session.Get)
		sessions.POST("/start", startLimit, handlers.Session.Start)
		sessions.POST("/answers", handlers.Session.Answer)
		sessions.POST("/advance", handlers.Session.Advance)
		sessions.POST("/previous", handlers.Session.Previous)
		sessions.POST("/review", handlers.Session.Review)
		sessions.POST("/edit/:index", handlers.Session.Edit)
		sessions.POST("/submit", handlers.Session.Submit)
		sessions.POST("/submit/retry", handlers.Session.RetrySubmission)
		sessions.POST("/restart", handlers.Session.Restart)
		sessions.GET("/analysis", handlers.Session.Analysis)
	}

	// ─── 2. WebSocket Group (Session JWT via ?token=) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionJWT(deps.Auth))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Auth Group (Rate Limited) ──────────────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/admin/login", loginLimit, handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(deps.Auth), handlers.Auth.GetAdminProfile)
	}

	// ─── 4. Admin Group (Admin JWT) ────────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdminJWT(deps.Auth))
	{
		admin.GET("/monitor", handlers.Monitor.MonitorSSE)
		admin.GET("/sessions", handlers.Monitor.ListSessions)
		admin.GET("/system", handlers.System.SystemSSE)

		if handlers.Admin != nil {
			admin.GET("/sessions/:id/anomalies", handlers.Admin.GetSessionAnomalies)
			admin.GET("/submissions", handlers.Admin.ListSubmissions)
			admin.GET("/submissions/:id", handlers.Admin.GetSubmission)
		}
	}

	return router
}

func passThrough(c *gin.Context) { c.Next() }
