// Package api wires together all HTTP routes for the PAK.sh web console.
//
// Route grouping philosophy:
//   - /healthz and /version are public so probes never need credentials.
//   - Everything under /api/v1 except the login/register/password-reset flows
//     requires authentication; the Auth middleware accepts a session token, a
//     JWT access token, or an API key as the Bearer credential.
//   - Admin-only routes are gated by the RequireAdmin middleware rather than
//     per-handler role checks.
//
// The auth endpoints carry a stricter rate limit than the rest of the API so
// credential stuffing burns its budget quickly without affecting normal use.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pak-sh/pakweb/internal/analytics"
	"github.com/pak-sh/pakweb/internal/api/accounts"
	"github.com/pak-sh/pakweb/internal/api/admin"
	analyticsapi "github.com/pak-sh/pakweb/internal/api/analytics"
	"github.com/pak-sh/pakweb/internal/api/projects"
	webhooksapi "github.com/pak-sh/pakweb/internal/api/webhooks"
	"github.com/pak-sh/pakweb/internal/auth"
	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/jobs"
	"github.com/pak-sh/pakweb/internal/ledger"
	"github.com/pak-sh/pakweb/internal/middleware"
	"github.com/pak-sh/pakweb/internal/pak"
	"github.com/pak-sh/pakweb/internal/safego"
	"github.com/pak-sh/pakweb/internal/webhook"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) invokes
// Shutdown after the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	webhookMaintenance *jobs.WebhookMaintenance
	sessionSweeper     *jobs.SessionSweeper
	memLimiters        []*middleware.MemoryLimiter
}

// Shutdown stops all background goroutines
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.webhookMaintenance != nil {
		bg.webhookMaintenance.Stop()
	}
	if bg.sessionSweeper != nil {
		bg.sessionSweeper.Stop()
	}
	for _, l := range bg.memLimiters {
		l.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Core services
	authSvc := auth.NewService(db, cfg.Auth)
	ledgerSvc := ledger.NewService(db)
	webhookSvc := webhook.NewService(db, cfg.Webhooks)
	analyticsSvc := analytics.NewService(db, cfg.Analytics)
	pakSvc := pak.NewService(pak.NewRunner(cfg.Pak))
	webhookRepo := repositories.NewWebhookRepository(db)

	// Background maintenance
	bg.webhookMaintenance = jobs.NewWebhookMaintenance(webhookSvc, cfg.Webhooks)
	safego.Go(func() { bg.webhookMaintenance.Start(context.Background()) })
	bg.sessionSweeper = jobs.NewSessionSweeper(db, time.Hour)
	safego.Go(func() { bg.sessionSweeper.Start(context.Background()) })

	// Rate limiters: Redis-backed when configured, per-process otherwise.
	var generalLimiter, authLimiter middleware.Limiter
	rl := cfg.Security.RateLimiting
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis url, falling back to in-memory rate limiting", "error", err)
		} else {
			client := redis.NewClient(opts)
			generalLimiter = middleware.NewRedisLimiter(client, rl.RequestsPerMinute, rl.Burst)
			authLimiter = middleware.NewRedisLimiter(client, rl.AuthRequestsPerMinute, rl.AuthBurst)
		}
	}
	if generalLimiter == nil {
		gl := middleware.NewMemoryLimiter(rl.RequestsPerMinute, rl.Burst)
		al := middleware.NewMemoryLimiter(rl.AuthRequestsPerMinute, rl.AuthBurst)
		bg.memLimiters = append(bg.memLimiters, gl, al)
		generalLimiter, authLimiter = gl, al
	}

	// Handlers
	accountHandlers := accounts.NewHandlers(authSvc)
	projectHandlers := projects.NewHandlers(ledgerSvc, webhookSvc, pakSvc)
	webhookHandlers := webhooksapi.NewHandlers(webhookSvc, webhookRepo, cfg.Webhooks.CleanupDays)
	analyticsHandlers := analyticsapi.NewHandlers(analyticsSvc, ledgerSvc)
	adminUserHandlers := admin.NewUserHandlers(db)
	pakHandlers := admin.NewPakHandlers(pakSvc)

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))

	router.GET("/healthz", healthCheckHandler(db))
	router.GET("/version", versionHandler())

	authRequired := middleware.Auth(authSvc, cfg.Auth.APIKeyPrefix)
	adminOnly := middleware.RequireAdmin()

	apiV1 := router.Group("/api/v1")
	if rl.Enabled {
		apiV1.Use(middleware.RateLimit(generalLimiter, rl.RequestsPerMinute))
	}
	{
		// Credential flows: public, strictly rate limited.
		authPublic := apiV1.Group("/auth")
		if rl.Enabled {
			authPublic.Use(middleware.RateLimit(authLimiter, rl.AuthRequestsPerMinute))
		}
		{
			authPublic.POST("/login", accountHandlers.Login())
			authPublic.POST("/register", accountHandlers.Register())
			authPublic.POST("/refresh", accountHandlers.Refresh())
			authPublic.POST("/forgot-password", accountHandlers.ForgotPassword())
			authPublic.POST("/reset-password", accountHandlers.ResetPassword())
		}

		// Account self-service (any authenticated user)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(authRequired)
		{
			authGroup.POST("/logout", accountHandlers.Logout())
			authGroup.GET("/me", accountHandlers.Me())
			authGroup.POST("/change-password", accountHandlers.ChangePassword())
			authGroup.POST("/api-key", accountHandlers.RegenerateAPIKey())
			authGroup.GET("/sessions", accountHandlers.ListSessions())
			authGroup.DELETE("/sessions/:id", accountHandlers.RevokeSession())
		}

		// Projects and their deployments
		projectsGroup := apiV1.Group("/projects")
		projectsGroup.Use(authRequired)
		{
			projectsGroup.GET("", projectHandlers.List())
			projectsGroup.POST("", projectHandlers.Create())
			projectsGroup.GET("/:id", projectHandlers.Get())
			projectsGroup.PUT("/:id", projectHandlers.Update())
			projectsGroup.DELETE("/:id", projectHandlers.Delete())
			projectsGroup.GET("/:id/deployments", projectHandlers.ListProjectDeployments())
			projectsGroup.POST("/:id/deploy", projectHandlers.Deploy())
		}

		deploymentsGroup := apiV1.Group("/deployments")
		deploymentsGroup.Use(authRequired)
		{
			deploymentsGroup.GET("", projectHandlers.ListDeployments())
			deploymentsGroup.GET("/:id", projectHandlers.GetDeployment())
			deploymentsGroup.POST("/:id/cancel", projectHandlers.CancelDeployment())
		}

		// Webhook subscriptions
		webhooksGroup := apiV1.Group("/webhooks")
		webhooksGroup.Use(authRequired)
		{
			webhooksGroup.GET("", webhookHandlers.List())
			webhooksGroup.POST("", webhookHandlers.Create())
			webhooksGroup.GET("/:id", webhookHandlers.Get())
			webhooksGroup.PUT("/:id", webhookHandlers.Update())
			webhooksGroup.DELETE("/:id", webhookHandlers.Delete())
			webhooksGroup.POST("/:id/test", webhookHandlers.Test())
			webhooksGroup.GET("/:id/deliveries", webhookHandlers.ListDeliveries())
			webhooksGroup.GET("/:id/stats", webhookHandlers.Stats())

			// Maintenance triggers (the background job runs these on a timer;
			// these endpoints exist for operators who cannot wait for it)
			webhooksGroup.POST("/retry-failed", adminOnly, webhookHandlers.RetryFailed())
			webhooksGroup.POST("/cleanup", adminOnly, webhookHandlers.Cleanup())
		}

		// Analytics
		analyticsGroup := apiV1.Group("/analytics")
		analyticsGroup.Use(authRequired)
		{
			analyticsGroup.GET("/system", adminOnly, analyticsHandlers.System())
			analyticsGroup.GET("/user", analyticsHandlers.User())
			analyticsGroup.GET("/project/:id", analyticsHandlers.Project())
			analyticsGroup.GET("/webhooks", adminOnly, analyticsHandlers.Webhooks())
		}

		// pak CLI bridge status
		pakGroup := apiV1.Group("/pak")
		pakGroup.Use(authRequired, adminOnly)
		{
			pakGroup.GET("/status", pakHandlers.Status())
			pakGroup.GET("/platforms", pakHandlers.Platforms())
		}

		// User administration
		adminUsers := apiV1.Group("/admin/users")
		adminUsers.Use(authRequired, adminOnly)
		{
			adminUsers.GET("", adminUserHandlers.List())
			adminUsers.GET("/:id", adminUserHandlers.Get())
			adminUsers.PUT("/:id", adminUserHandlers.Update())
			adminUsers.DELETE("/:id", adminUserHandlers.Delete())
			adminUsers.POST("/:id/unlock", adminUserHandlers.Unlock())
		}
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
