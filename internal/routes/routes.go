package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/handlers"
	"github.com/mtbridge/signal-bridge/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles the handler set wired in main.
type Handlers struct {
	Webhook  *handlers.WebhookHandler
	Delivery *handlers.DeliveryHandler
	Signals  *handlers.SignalHandler
	Accounts *handlers.AccountHandler
	Auth     *handlers.AuthHandler
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, cfg *config.Config, h *Handlers) {
	webhookLimiter := middleware.NewKeyedLimiter(cfg.RateLimit.WebhookPerMinute)
	pollLimiter := middleware.NewKeyedLimiter(cfg.RateLimit.PollPerMinute)

	byClientIP := func(c *gin.Context) string { return c.ClientIP() }
	byAPIKey := func(c *gin.Context) string {
		if key := c.Query("api_key"); key != "" {
			return key
		}
		return c.GetHeader("X-API-Key")
	}

	api := r.Group("/api/v1")
	{
		// TradingView webhook endpoint
		api.POST("/webhook/tradingview",
			middleware.RateLimit(webhookLimiter, byClientIP),
			h.Webhook.HandleTradingView)

		// EA delivery endpoints, authenticated by account API key
		api.GET("/signals/pending",
			middleware.RateLimit(pollLimiter, byAPIKey),
			h.Delivery.GetPendingSignals)
		api.POST("/signals/:id/result",
			middleware.RateLimit(pollLimiter, byAPIKey),
			h.Delivery.ReportResult)

		// Web API authentication
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)

			authed := auth.Group("", middleware.JWTAuth(&cfg.Auth))
			{
				authed.GET("/me", h.Auth.Me)
				authed.POST("/webhook-secret/regenerate", h.Auth.RegenerateWebhookSecret)
			}
		}

		// Signal log, JWT-authenticated
		signals := api.Group("/signals", middleware.JWTAuth(&cfg.Auth))
		{
			signals.GET("", h.Signals.ListSignals)
			signals.GET("/export", h.Signals.ExportSignals)
			signals.GET("/:id", h.Signals.GetSignal)
			signals.DELETE("/:id", h.Signals.CancelSignal)
		}

		// Account management, JWT-authenticated
		accounts := api.Group("/accounts", middleware.JWTAuth(&cfg.Auth))
		{
			accounts.GET("", h.Accounts.ListAccounts)
			accounts.POST("", h.Accounts.CreateAccount)
			accounts.GET("/:id", h.Accounts.GetAccount)
			accounts.PATCH("/:id", h.Accounts.UpdateAccount)
			accounts.DELETE("/:id", h.Accounts.DeleteAccount)
			accounts.POST("/:id/regenerate-key", h.Accounts.RegenerateAPIKey)

			accounts.GET("/:id/mappings", h.Accounts.ListMappings)
			accounts.POST("/:id/mappings", h.Accounts.CreateMapping)
			accounts.PUT("/:id/mappings/:mapping_id", h.Accounts.UpdateMapping)
			accounts.DELETE("/:id/mappings/:mapping_id", h.Accounts.DeleteMapping)
		}
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "signal-bridge",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Trading Signal Bridge",
			"version": "1.0.0",
			"endpoints": gin.H{
				"webhook": "/api/v1/webhook/tradingview",
				"pending": "/api/v1/signals/pending",
				"health":  "/health",
			},
		})
	})
}
