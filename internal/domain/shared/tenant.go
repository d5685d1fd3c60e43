package shared

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMissingTenant indicates an operation was attempted without tenant identity
var ErrMissingTenant = errors.New("shared: tenant context has no tenant ID")

// TenantContext carries the tenant identity and resolved permissions for a
// single operation. Every cross-system record the hub touches is scoped by
// the tenant carried here.
type TenantContext struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Permissions PermissionSet
}

// Validate returns an error if the context is unusable
func (tc TenantContext) Validate() error {
	if tc.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	return nil
}

// PermissionSet is the set of permission keys granted to a tenant principal
type PermissionSet map[string]struct{}

// NewPermissionSet builds a PermissionSet from a list of permission keys
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has returns true if the permission key is present
func (p PermissionSet) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the permission keys in the set
func (p PermissionSet) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}
