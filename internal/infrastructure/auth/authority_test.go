package auth

import (
	"context"
	"testing"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAuthority(t *testing.T) {
	t.Run("returns configured grant", func(t *testing.T) {
		authority := NewStaticAuthority("integrations:manage", "data:sync")

		perms, err := authority.ResolvePermissions(context.Background(), shared.TenantContext{TenantID: uuid.New()})

		require.NoError(t, err)
		assert.True(t, perms.Has("integrations:manage"))
		assert.True(t, perms.Has("data:sync"))
		assert.False(t, perms.Has("subscriptions:manage"))
	})

	t.Run("empty grant denies everything", func(t *testing.T) {
		authority := NewStaticAuthority()

		perms, err := authority.ResolvePermissions(context.Background(), shared.TenantContext{TenantID: uuid.New()})

		require.NoError(t, err)
		assert.Empty(t, perms)
		assert.False(t, perms.Has("integrations:manage"))
	})

	t.Run("rejects missing tenant", func(t *testing.T) {
		authority := NewStaticAuthority("data:sync")

		_, err := authority.ResolvePermissions(context.Background(), shared.TenantContext{})

		assert.ErrorIs(t, err, shared.ErrMissingTenant)
	})
}
