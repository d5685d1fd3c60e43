package middleware

import (
	"net/http"
	"strings"

	"github.com/crm/hub/internal/infrastructure/auth"
	"github.com/crm/hub/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Auth context keys
const (
	JWTClaimsKey  = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthMiddlewareConfig holds configuration for the bearer-token middleware
type AuthMiddlewareConfig struct {
	// Service validates tokens
	Service *auth.Service
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultAuthConfig returns default middleware configuration. Webhook
// receive endpoints are excluded: they authenticate via payload signature,
// not bearer tokens.
func DefaultAuthConfig(service *auth.Service) AuthMiddlewareConfig {
	return AuthMiddlewareConfig{
		Service: service,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/api/v1/health",
		},
		SkipPathPrefixes: []string{
			"/api/v1/webhooks",
		},
	}
}

// Auth creates bearer-token authentication middleware with default config
func Auth(service *auth.Service) gin.HandlerFunc {
	return AuthWithConfig(DefaultAuthConfig(service))
}

// AuthWithConfig creates bearer-token authentication middleware. On success
// the token's claims become the request's tenant context.
func AuthWithConfig(cfg AuthMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortUnauthorized(c, "ERR_UNAUTHORIZED", "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			abortUnauthorized(c, "ERR_TOKEN_INVALID", "Invalid authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)

		claims, err := cfg.Service.ValidateToken(tokenString)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("token validation failed",
					zap.String("path", path),
					zap.Error(err),
				)
			}
			code := "ERR_TOKEN_INVALID"
			if err == auth.ErrExpiredToken {
				code = "ERR_TOKEN_EXPIRED"
			}
			abortUnauthorized(c, code, "Authentication failed")
			return
		}

		tc, err := claims.TenantContext()
		if err != nil {
			abortUnauthorized(c, "ERR_TOKEN_INVALID", "Authentication failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		SetTenantContext(c, tc)

		// Enrich the request logger with the authenticated identity
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, _ = logger.WithTenantID(ctx, log, tc.TenantID.String())
		if tc.UserID.String() != "00000000-0000-0000-0000-000000000000" {
			ctx, _ = logger.WithUserID(ctx, log, tc.UserID.String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetJWTClaims retrieves validated claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
