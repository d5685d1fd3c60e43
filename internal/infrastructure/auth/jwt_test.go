package auth

import (
	"testing"
	"time"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "hub-test",
	})
}

func TestService_IssueAndValidate(t *testing.T) {
	svc := newTestService()
	tenantID := uuid.New()
	userID := uuid.New()
	permissions := []string{hub.PermManageIntegrations, hub.PermSyncData}

	token, expiresAt, err := svc.IssueToken(tenantID, userID, permissions)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, permissions, claims.Permissions)
	assert.Equal(t, "hub-test", claims.Issuer)
}

func TestService_ValidateToken_Errors(t *testing.T) {
	svc := newTestService()

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(config.JWTConfig{
			Secret:                "a-different-secret-with-32-chars!!",
			AccessTokenExpiration: time.Minute,
			Issuer:                "hub-test",
		})
		token, _, err := other.IssueToken(uuid.New(), uuid.New(), nil)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		short := NewService(config.JWTConfig{
			Secret:                "test-secret-key-at-least-32-chars",
			AccessTokenExpiration: time.Millisecond,
			Issuer:                "hub-test",
		})
		token, _, err := short.IssueToken(uuid.New(), uuid.New(), nil)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestClaims_TenantContext(t *testing.T) {
	svc := newTestService()
	tenantID := uuid.New()
	userID := uuid.New()

	token, _, err := svc.IssueToken(tenantID, userID, []string{hub.PermManageSubscriptions})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	tc, err := claims.TenantContext()
	require.NoError(t, err)
	assert.Equal(t, tenantID, tc.TenantID)
	assert.Equal(t, userID, tc.UserID)
	assert.True(t, tc.Permissions.Has(hub.PermManageSubscriptions))
	assert.False(t, tc.Permissions.Has(hub.PermManageIntegrations))
}

func TestClaims_TenantContext_InvalidTenant(t *testing.T) {
	claims := &Claims{TenantID: "not-a-uuid"}
	_, err := claims.TenantContext()
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
