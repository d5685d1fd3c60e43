package middleware

import (
	"net/http"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant context keys
const (
	TenantContextKey = "tenant_context"
	TenantHeaderKey  = "X-Tenant-ID"
)

// SetTenantContext stores the tenant context in gin.Context and enriches
// the request context logger with the tenant ID.
func SetTenantContext(c *gin.Context, tc shared.TenantContext) {
	c.Set(TenantContextKey, tc)

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	ctx, _ = logger.WithTenantID(ctx, log, tc.TenantID.String())
	c.Request = c.Request.WithContext(ctx)
}

// GetTenantContext retrieves the tenant context from gin.Context.
// The second return value reports whether one was set.
func GetTenantContext(c *gin.Context) (shared.TenantContext, bool) {
	if v, exists := c.Get(TenantContextKey); exists {
		if tc, ok := v.(shared.TenantContext); ok {
			return tc, true
		}
	}
	return shared.TenantContext{}, false
}

// MustGetTenantContext retrieves the tenant context or panics.
// Use only on routes behind Auth or WebhookTenant middleware.
func MustGetTenantContext(c *gin.Context) shared.TenantContext {
	tc, ok := GetTenantContext(c)
	if !ok {
		panic("tenant context not found in request")
	}
	return tc
}

// WebhookTenantConfig holds configuration for the webhook tenant middleware
type WebhookTenantConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
}

// WebhookTenant identifies the tenant on webhook receive routes. Webhooks
// carry no bearer token, so the tenant comes from the X-Tenant-ID header
// that external systems are configured to send. The payload itself is
// authenticated later by signature verification.
func WebhookTenant() gin.HandlerFunc {
	return WebhookTenantWithConfig(WebhookTenantConfig{})
}

// WebhookTenantWithConfig returns webhook tenant middleware with custom
// configuration
func WebhookTenantWithConfig(cfg WebhookTenantConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(TenantHeaderKey)
		if header == "" {
			respondTenantRequired(c, "Tenant identification required")
			return
		}

		tenantID, err := uuid.Parse(header)
		if err != nil || tenantID == uuid.Nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("invalid tenant header on webhook",
					zap.String("path", c.Request.URL.Path),
				)
			}
			respondTenantRequired(c, "Invalid tenant identifier")
			return
		}

		SetTenantContext(c, shared.TenantContext{TenantID: tenantID})
		c.Next()
	}
}

func respondTenantRequired(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_UNAUTHORIZED",
			"message": message,
		},
	})
}
