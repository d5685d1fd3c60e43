// Package auth issues and validates the bearer tokens protecting the
// management API. Tokens carry the tenant identity and permission keys the
// hub checks on every management operation.
package auth

import (
	"errors"
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrExpiredToken     = errors.New("auth: token has expired")
	ErrTokenNotYetValid = errors.New("auth: token is not yet valid")
	ErrInvalidClaims    = errors.New("auth: invalid token claims")
	ErrMissingTenantID  = errors.New("auth: missing tenant_id in claims")
)

// Claims are the custom JWT claims on a management-API token
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// TenantContext builds the operation-scoped tenant context from the claims
func (c *Claims) TenantContext() (shared.TenantContext, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return shared.TenantContext{}, ErrInvalidClaims
	}
	tc := shared.TenantContext{TenantID: tenantID}
	if c.UserID != "" {
		userID, err := uuid.Parse(c.UserID)
		if err != nil {
			return shared.TenantContext{}, ErrInvalidClaims
		}
		tc.UserID = userID
	}
	if len(c.Permissions) > 0 {
		tc.Permissions = shared.NewPermissionSet(c.Permissions...)
	}
	return tc, nil
}

// Service signs and validates management-API tokens
type Service struct {
	secret     []byte
	expiration time.Duration
	issuer     string
}

// NewService creates a token service from configuration
func NewService(cfg config.JWTConfig) *Service {
	expiration := cfg.AccessTokenExpiration
	if expiration <= 0 {
		expiration = time.Hour
	}
	return &Service{
		secret:     []byte(cfg.Secret),
		expiration: expiration,
		issuer:     cfg.Issuer,
	}
}

// IssueToken signs a token for the tenant principal. Returns the token and
// its expiry.
func (s *Service) IssueToken(tenantID, userID uuid.UUID, permissions []string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:    tenantID.String(),
		UserID:      userID.String(),
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a token, returning its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	return claims, nil
}
