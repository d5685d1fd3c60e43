// Package router wires the HTTP surface: webhook ingestion, integration
// and subscription management, and the audit trail.
package router

import (
	"github.com/crm/hub/internal/infrastructure/auth"
	"github.com/crm/hub/internal/interfaces/http/handler"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers collects the route handlers to be wired
type Handlers struct {
	System       *handler.SystemHandler
	Webhook      *handler.WebhookHandler
	Integration  *handler.IntegrationHandler
	Subscription *handler.SubscriptionHandler
	Audit        *handler.AuditHandler
}

// Options configures cross-cutting route behavior
type Options struct {
	// AuthService guards the management API. When nil, bearer-token
	// authentication is skipped entirely (tests only).
	AuthService *auth.Service
	// Logger for middleware logging
	Logger *zap.Logger
	// RateLimiter applies transport-level rate limiting when set
	RateLimiter *middleware.RateLimiter
}

// Setup registers all routes on the engine.
//
// Webhook receive routes sit outside bearer-token auth: the caller is an
// external system identified by the X-Tenant-ID header and authenticated
// by payload signature inside the processing pipeline.
func Setup(engine *gin.Engine, h Handlers, opts Options) {
	engine.GET("/health", h.System.Health)
	engine.GET("/healthz", h.System.Health)

	api := engine.Group("/api/v1")

	if opts.RateLimiter != nil {
		api.Use(middleware.RateLimit(opts.RateLimiter))
	}

	if opts.AuthService != nil {
		authCfg := middleware.DefaultAuthConfig(opts.AuthService)
		authCfg.Logger = opts.Logger
		api.Use(middleware.AuthWithConfig(authCfg))
	}

	api.GET("/system/info", h.System.Info)

	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.WebhookTenantWithConfig(middleware.WebhookTenantConfig{Logger: opts.Logger}))
	webhooks.POST("/:system_id", h.Webhook.Receive)

	integrations := api.Group("/integrations")
	integrations.POST("", h.Integration.Register)
	integrations.GET("", h.Integration.List)
	integrations.GET("/:system_id", h.Integration.Get)
	integrations.DELETE("/:system_id", h.Integration.Deregister)
	integrations.POST("/:system_id/validate", h.Integration.Validate)
	integrations.POST("/:system_id/sync", h.Integration.Sync)

	subscriptions := api.Group("/subscriptions")
	subscriptions.POST("", h.Subscription.Create)
	subscriptions.GET("", h.Subscription.List)
	subscriptions.GET("/:id", h.Subscription.Get)
	subscriptions.DELETE("/:id", h.Subscription.Delete)
	subscriptions.POST("/:id/pause", h.Subscription.Pause)
	subscriptions.POST("/:id/resume", h.Subscription.Resume)
	subscriptions.POST("/:id/rotate-secret", h.Subscription.RotateSecret)
	subscriptions.GET("/:id/deliveries", h.Subscription.ListDeliveries)

	deliveries := api.Group("/deliveries")
	deliveries.POST("/:attempt_id/redrive", h.Subscription.RedriveDelivery)

	api.GET("/audit", h.Audit.List)
}
