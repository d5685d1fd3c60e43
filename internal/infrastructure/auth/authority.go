package auth

import (
	"context"

	"github.com/crm/hub/internal/domain/shared"
)

// StaticAuthority implements shared.TenantAuthority with a fixed grant.
// Access tokens issued by the platform carry permissions in their claims, so
// the authority is only consulted for principals whose context arrives
// without a permission set. An empty grant makes those callers fail closed.
type StaticAuthority struct {
	perms shared.PermissionSet
}

// NewStaticAuthority creates an authority granting the given permission keys
func NewStaticAuthority(keys ...string) *StaticAuthority {
	return &StaticAuthority{perms: shared.NewPermissionSet(keys...)}
}

// ResolvePermissions returns the configured grant for any valid tenant
func (a *StaticAuthority) ResolvePermissions(ctx context.Context, tc shared.TenantContext) (shared.PermissionSet, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return a.perms, nil
}

// Ensure StaticAuthority implements TenantAuthority
var _ shared.TenantAuthority = (*StaticAuthority)(nil)
